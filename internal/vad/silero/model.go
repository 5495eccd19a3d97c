package silero

import (
	"context"
	"fmt"
	"sync"
)

// Config configures the Silero-backed VAD model.
type Config struct {
	ModelPath   string
	SampleRate  int
	Threshold   float32
	NumThreads  int
	Provider    string // empty selects DefaultProvider()
	WindowSize  int    // samples per AcceptWaveform call, e.g. 512 at 16kHz
	BufferSecs  float64
}

// Model adapts sherpa-onnx's VoiceActivityDetector to the ingestion core's
// vad.Model interface. It implements that interface structurally (same
// method set, no import of the vad package) so this package stays free of
// the classifier that doesn't need sherpa-onnx at all.
type Model struct {
	mu  sync.Mutex
	vad *VoiceActivityDetector
	cfg Config
}

// New constructs a Silero-backed Model. Returns an error if the native VAD
// object fails to initialize, which surfaces as a fatal startup error per
// spec §4.3 ("model load failure is fatal at startup").
func New(cfg Config) (*Model, error) {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 512
	}
	if cfg.BufferSecs <= 0 {
		cfg.BufferSecs = 60
	}
	if cfg.Provider == "" {
		cfg.Provider = DefaultProvider()
	}

	vadConfig := &VadModelConfig{}
	vadConfig.SileroVad.Model = cfg.ModelPath
	vadConfig.SileroVad.Threshold = cfg.Threshold
	vadConfig.SileroVad.WindowSize = cfg.WindowSize
	vadConfig.SampleRate = cfg.SampleRate
	vadConfig.NumThreads = cfg.NumThreads
	vadConfig.Provider = cfg.Provider

	v := NewVoiceActivityDetector(vadConfig, cfg.BufferSecs)
	if v == nil {
		return nil, fmt.Errorf("silero: failed to initialize VAD model %q", cfg.ModelPath)
	}
	return &Model{vad: v, cfg: cfg}, nil
}

// Classify feeds window through the native VAD and reports 1.0 when sherpa
// considers the detector's current state to be speech, 0.0 otherwise. The
// underlying detector is stateful (it accumulates speech/silence runs
// internally), so window must be the sequential continuation of the stream
// this Model was constructed for.
func (m *Model) Classify(_ context.Context, window []int16) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vad == nil {
		return 0, fmt.Errorf("silero: model closed")
	}

	samples := make([]float32, len(window))
	for i, s := range window {
		samples[i] = float32(s) / 32768.0
	}

	m.vad.AcceptWaveform(samples)
	for !m.vad.IsEmpty() {
		m.vad.Pop()
	}
	if m.vad.IsSpeech() {
		return 1, nil
	}
	return 0, nil
}

// Reset clears the detector's internal speech/silence run state.
func (m *Model) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vad != nil {
		m.vad.Reset()
	}
}

// Close releases the native VAD object. Safe to call multiple times.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vad != nil {
		DeleteVoiceActivityDetector(m.vad)
		m.vad = nil
	}
	return nil
}
