// Package config parses the ingestion core's CLI flags and RTSTT_*
// environment variable overrides into a session.Config, following the
// teacher's flag-based configuration style.
package config

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/rtstt/ingestcore/internal/device"
	"github.com/rtstt/ingestcore/internal/rtstterr"
	"github.com/rtstt/ingestcore/internal/session"
)

// Config mirrors the options table in spec §6 before being translated into
// a session.Config. Kept as a flat struct (rather than session.Config
// directly) so flag/env parsing stays independent of the session package's
// shape.
type Config struct {
	WSURL         string
	Driver        string
	DeviceID      string
	SampleRate    int
	Channels      int
	FrameMs       int
	BufferSeconds float64
	ChunkMs       int

	VADEnabled    bool
	VADThreshold  float64
	VADPreRollMs  int
	VADHangoverMs int

	HeartbeatMs       int
	ReconnectInitialMs int
	ReconnectMaxMs     int
	ReconnectMaxRetries int

	StopTimeoutMs int
	TestDurationS int

	LogLevel string

	ListDevices bool
}

// Defaults returns the spec §6 default values.
func Defaults() Config {
	return Config{
		Driver:              "auto",
		SampleRate:          16000,
		Channels:            1,
		FrameMs:             20,
		BufferSeconds:       2.0,
		ChunkMs:             2000,
		VADThreshold:        0.5,
		VADPreRollMs:        300,
		VADHangoverMs:       500,
		HeartbeatMs:         15000,
		ReconnectInitialMs:  1000,
		ReconnectMaxMs:      30000,
		StopTimeoutMs:       2000,
		LogLevel:            "info",
	}
}

// Parse parses args (typically os.Args[1:]) into a Config, applying
// RTSTT_<UPPER_SNAKE_CASE> environment overrides first and letting flags
// take final precedence, per spec §6.
func Parse(args []string, getenv func(string) string) (Config, error) {
	cfg := Defaults()
	applyEnv(&cfg, getenv)

	fs := flag.NewFlagSet("rtstt-ingest", flag.ContinueOnError)
	fs.StringVar(&cfg.WSURL, "ws-url", cfg.WSURL, "WebSocket endpoint to stream chunks to (ws:// or wss://)")
	fs.StringVar(&cfg.Driver, "driver", cfg.Driver, "Capture driver: native, portable, synthetic, or auto")
	fs.StringVar(&cfg.DeviceID, "device-id", cfg.DeviceID, "Capture device id; empty selects the system default")
	fs.IntVar(&cfg.SampleRate, "sample-rate", cfg.SampleRate, "Target PCM sample rate in Hz")
	fs.IntVar(&cfg.Channels, "channels", cfg.Channels, "Channel count (always 1 for this core)")
	fs.IntVar(&cfg.ChunkMs, "chunk-ms", cfg.ChunkMs, "Outgoing chunk duration in milliseconds")
	fs.Float64Var(&cfg.BufferSeconds, "buffer-seconds", cfg.BufferSeconds, "Ring buffer capacity in seconds")
	fs.IntVar(&cfg.TestDurationS, "test-duration", cfg.TestDurationS, "Auto-stop after N seconds (0 disables)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.BoolVar(&cfg.ListDevices, "list-devices", cfg.ListDevices, "List capture devices and exit")
	fs.BoolVar(&cfg.VADEnabled, "vad-enabled", cfg.VADEnabled, "Enable VAD gating")
	fs.Float64Var(&cfg.VADThreshold, "vad-threshold", cfg.VADThreshold, "VAD speech probability threshold")
	fs.IntVar(&cfg.VADPreRollMs, "vad-pre-roll-ms", cfg.VADPreRollMs, "Pre-roll kept before the first speech window")
	fs.IntVar(&cfg.VADHangoverMs, "vad-hangover-ms", cfg.VADHangoverMs, "Silence required to end a segment")
	fs.IntVar(&cfg.HeartbeatMs, "heartbeat-ms", cfg.HeartbeatMs, "Idle heartbeat interval when no chunks are flowing")
	fs.IntVar(&cfg.ReconnectInitialMs, "reconnect-initial-ms", cfg.ReconnectInitialMs, "First reconnect backoff delay")
	fs.IntVar(&cfg.ReconnectMaxMs, "reconnect-max-ms", cfg.ReconnectMaxMs, "Reconnect backoff delay cap")
	fs.IntVar(&cfg.ReconnectMaxRetries, "reconnect-max-retries", cfg.ReconnectMaxRetries, "Max reconnect attempts (0 means infinite)")

	if err := fs.Parse(args); err != nil {
		return Config{}, rtstterr.Wrap(rtstterr.KindConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	str := func(key string, dst *string) {
		if v := getenv("RTSTT_" + key); v != "" {
			*dst = v
		}
	}
	intv := func(key string, dst *int) {
		if v := getenv("RTSTT_" + key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	floatv := func(key string, dst *float64) {
		if v := getenv("RTSTT_" + key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	boolv := func(key string, dst *bool) {
		if v := getenv("RTSTT_" + key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str("WS_URL", &cfg.WSURL)
	str("DRIVER", &cfg.Driver)
	str("DEVICE_ID", &cfg.DeviceID)
	intv("SAMPLE_RATE", &cfg.SampleRate)
	intv("CHANNELS", &cfg.Channels)
	intv("FRAME_MS", &cfg.FrameMs)
	floatv("BUFFER_SECONDS", &cfg.BufferSeconds)
	intv("CHUNK_MS", &cfg.ChunkMs)
	boolv("VAD_ENABLED", &cfg.VADEnabled)
	floatv("VAD_THRESHOLD", &cfg.VADThreshold)
	intv("VAD_PRE_ROLL_MS", &cfg.VADPreRollMs)
	intv("VAD_HANGOVER_MS", &cfg.VADHangoverMs)
	intv("HEARTBEAT_MS", &cfg.HeartbeatMs)
	intv("RECONNECT_INITIAL_MS", &cfg.ReconnectInitialMs)
	intv("RECONNECT_MAX_MS", &cfg.ReconnectMaxMs)
	intv("RECONNECT_MAX_RETRIES", &cfg.ReconnectMaxRetries)
	intv("STOP_TIMEOUT_MS", &cfg.StopTimeoutMs)
	intv("TEST_DURATION_S", &cfg.TestDurationS)
	str("LOG_LEVEL", &cfg.LogLevel)
}

// Validate checks config-time invariants, returning a KindConfig error on
// the first violation found.
func (c Config) Validate() error {
	if c.ListDevices {
		return nil
	}
	if c.WSURL == "" {
		return rtstterr.Wrapf(rtstterr.KindConfig, "ws_url is required")
	}
	u, err := url.Parse(c.WSURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return rtstterr.Wrapf(rtstterr.KindConfig, "ws_url must be a ws:// or wss:// URL, got %q", c.WSURL)
	}
	switch device.Kind(c.Driver) {
	case device.KindNative, device.KindPortable, device.KindSynthetic, device.KindAuto:
	default:
		return rtstterr.Wrapf(rtstterr.KindConfig, "unknown driver %q", c.Driver)
	}
	if c.SampleRate <= 0 {
		return rtstterr.Wrapf(rtstterr.KindConfig, "sample_rate must be positive")
	}
	if c.Channels != 1 {
		return rtstterr.Wrapf(rtstterr.KindConfig, "channels must be 1 for this core, got %d", c.Channels)
	}
	if c.BufferSeconds <= 0 {
		return rtstterr.Wrapf(rtstterr.KindConfig, "buffer_seconds must be positive")
	}
	if c.ChunkMs <= 0 {
		return rtstterr.Wrapf(rtstterr.KindConfig, "chunk_ms must be positive")
	}
	if c.VADEnabled && (c.VADThreshold < 0 || c.VADThreshold > 1) {
		return rtstterr.Wrapf(rtstterr.KindConfig, "vad.threshold must be in [0,1], got %f", c.VADThreshold)
	}
	return nil
}

// ToSessionConfig translates the parsed CLI/env configuration into a
// session.Config.
func (c Config) ToSessionConfig() session.Config {
	return session.Config{
		WSURL:         c.WSURL,
		DriverKind:    device.Kind(c.Driver),
		DeviceID:      c.DeviceID,
		SampleRate:    c.SampleRate,
		Channels:      c.Channels,
		FrameMs:       c.FrameMs,
		BufferSeconds: c.BufferSeconds,
		ChunkMs:       c.ChunkMs,
		VAD: session.VADConfig{
			Enabled:    c.VADEnabled,
			Threshold:  c.VADThreshold,
			PreRollMs:  c.VADPreRollMs,
			HangoverMs: c.VADHangoverMs,
		},
		HeartbeatMs: c.HeartbeatMs,
		Reconnect: session.ReconnectConfig{
			InitialMs:  c.ReconnectInitialMs,
			MaxMs:      c.ReconnectMaxMs,
			MaxRetries: c.ReconnectMaxRetries,
		},
		StopTimeoutMs: c.StopTimeoutMs,
	}
}

// FormatDeviceLine renders one --list-devices output line:
// "id\tname\t(default)?".
func FormatDeviceLine(d device.Descriptor) string {
	marker := ""
	if d.IsDefault {
		marker = "\t(default)"
	}
	return fmt.Sprintf("%s\t%s%s", d.ID, d.HumanName, marker)
}
