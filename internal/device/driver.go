// Package device abstracts audio capture across a system-native backend, a
// portable cross-platform backend, and a synthetic generator for tests. All
// three deliver mono signed-16-bit PCM frames at a configured sample rate
// through a callback that must be treated as running on a real-time thread:
// it must never allocate, perform network I/O, or block on synchronization.
package device

import (
	"fmt"
	"time"

	"github.com/rtstt/ingestcore/internal/rtstterr"
)

// Descriptor identifies one capture endpoint.
type Descriptor struct {
	ID                 string
	HumanName          string
	IsDefault          bool
	MaxInputChannels   int
	DefaultSampleRate  int
}

// Config is the immutable audio configuration for a capture session.
type Config struct {
	SampleRate      int // target output rate, e.g. 16000
	Channels        int // always 1 for this core; input may be downmixed
	FrameSizeMs     int // driver-local frame duration, typically 10-30ms
	BufferSeconds   float64
}

// FrameFunc is invoked with a fresh, driver-owned slice of mono s16 samples.
// Implementations MUST copy the slice before retaining it past the call, and
// MUST NOT block, allocate, or perform I/O inside the callback.
type FrameFunc func(samples []int16)

// Driver is the capability contract every capture backend implements.
type Driver interface {
	// Enumerate lists available capture endpoints.
	Enumerate() ([]Descriptor, error)
	// DefaultDevice returns the host's default capture endpoint, if any.
	DefaultDevice() (*Descriptor, error)
	// Start begins delivering frames to onFrame on a driver-owned thread.
	// deviceID selects a specific endpoint; an empty string means "default".
	Start(cfg Config, deviceID string, onFrame FrameFunc) error
	// Stop halts delivery and joins the driver thread. Idempotent.
	Stop()
	// IsRunning reports whether Start has been called without a matching Stop.
	IsRunning() bool
}

// Kind names a driver variant for the factory and for --driver/RTSTT_DRIVER.
type Kind string

const (
	KindNative   Kind = "native"
	KindPortable Kind = "portable"
	KindSynthetic Kind = "synthetic"
	KindAuto     Kind = "auto"
)

// SyntheticWaveform selects what a Synthetic driver generates.
type SyntheticWaveform string

const (
	WaveformSine    SyntheticWaveform = "sine"
	WaveformNoise   SyntheticWaveform = "noise"
	WaveformSilence SyntheticWaveform = "silence"
)

// FactoryOptions carries variant-specific knobs through New.
type FactoryOptions struct {
	// SyntheticWaveform selects the waveform for the Synthetic driver.
	// Defaults to WaveformSine.
	SyntheticWaveform SyntheticWaveform
	// SyntheticFrequencyHz is the sine frequency for the Synthetic driver.
	// Defaults to 440Hz.
	SyntheticFrequencyHz float64
}

// New selects and constructs a Driver for kind. KindAuto prefers native,
// falls back to portable, and only selects synthetic when requested
// explicitly (never silently, per spec §4.1).
func New(kind Kind, opts FactoryOptions) (Driver, error) {
	switch kind {
	case KindNative:
		return newNativeDriver(), nil
	case KindPortable:
		return newPortableDriver(), nil
	case KindSynthetic:
		return newSyntheticDriver(opts), nil
	case KindAuto, "":
		if d := tryNative(); d != nil {
			return d, nil
		}
		return newPortableDriver(), nil
	default:
		return nil, rtstterr.Wrapf(rtstterr.KindConfig, "unknown driver kind %q", kind)
	}
}

// tryNative returns a native driver only when the host reports a usable
// native audio subsystem; otherwise nil so the caller falls back.
func tryNative() Driver {
	if !nativeSubsystemAvailable() {
		return nil
	}
	return newNativeDriver()
}

// frameDuration returns how long one frame of cfg.FrameSizeMs represents.
func frameDuration(cfg Config) time.Duration {
	return time.Duration(cfg.FrameSizeMs) * time.Millisecond
}

// frameSamples returns the number of samples per frame for cfg.
func frameSamples(cfg Config) int {
	return cfg.SampleRate * cfg.FrameSizeMs / 1000
}

func validateConfig(cfg Config) error {
	if cfg.SampleRate <= 0 {
		return rtstterr.Wrapf(rtstterr.KindConfig, "sample_rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.Channels <= 0 {
		return rtstterr.Wrapf(rtstterr.KindConfig, "channels must be positive, got %d", cfg.Channels)
	}
	if cfg.FrameSizeMs <= 0 {
		return rtstterr.Wrapf(rtstterr.KindConfig, "frame_ms must be positive, got %d", cfg.FrameSizeMs)
	}
	return nil
}

func deviceNotFoundErr(id string) error {
	return fmt.Errorf("%w: device id %q", rtstterr.ErrDeviceUnavailable, id)
}
