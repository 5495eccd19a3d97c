package vad

import (
	"context"
	"encoding/binary"
	"log/slog"
	"sync"
)

// Config configures a Gate. Zero-value SampleRate is invalid; call
// DefaultConfig for sane starting values.
type Config struct {
	SampleRate  int
	WindowMs    int     // classifier window size, default 30
	Threshold   float64 // p_speech cutoff, default 0.5
	PreRollMs   int     // default 300
	HangoverMs  int     // default 500
	Disabled    bool    // bypass mode: forward all bytes unchanged
}

// DefaultConfig returns the spec's §4.3 defaults for sampleRate.
func DefaultConfig(sampleRate int) Config {
	return Config{
		SampleRate: sampleRate,
		WindowMs:   30,
		Threshold:  0.5,
		PreRollMs:  300,
		HangoverMs: 500,
	}
}

type gateState int

const (
	stateIdle gateState = iota
	stateInSegment
	stateHangover
)

// Gate consumes mono s16 PCM and emits speech-segment byte payloads
// incrementally through an OnBytes callback, applying pre-roll and hangover
// per spec §4.3. Push and Flush serialize on an internal mutex, so Flush may
// be called from another goroutine; the OnSegmentBoundary and OnFault
// setters are not synchronized and belong before the first Push.
type Gate struct {
	cfg   Config
	model Model

	windowSamples int
	preRollWindows int
	hangoverWindows int

	pending []int16 // samples accumulated toward the next full window
	lookback [][]int16 // ring of recent windows for pre-roll, oldest first

	state            gateState
	hangoverRemaining int
	bypassForSession bool

	mu sync.Mutex

	onBytes   func([]byte)
	onSegment func(started bool)
	onFault   func(error)

	faultReported bool
}

// NewGate constructs a Gate. model may be nil only when cfg.Disabled is true.
func NewGate(cfg Config, model Model, onBytes func([]byte)) *Gate {
	windowSamples := cfg.SampleRate * cfg.WindowMs / 1000
	if windowSamples <= 0 {
		windowSamples = cfg.SampleRate * 30 / 1000
	}
	preRollWindows := cfg.PreRollMs / max1(cfg.WindowMs)
	hangoverWindows := cfg.HangoverMs / max1(cfg.WindowMs)
	if hangoverWindows < 1 {
		hangoverWindows = 1
	}
	return &Gate{
		cfg:             cfg,
		model:           model,
		windowSamples:   windowSamples,
		preRollWindows:  preRollWindows,
		hangoverWindows: hangoverWindows,
		onBytes:         onBytes,
		bypassForSession: cfg.Disabled,
	}
}

func max1(v int) int {
	if v <= 0 {
		return 1
	}
	return v
}

// OnSegmentBoundary registers a callback invoked with true when a segment
// starts and false when it ends (including the forced end at Flush).
func (g *Gate) OnSegmentBoundary(fn func(started bool)) { g.onSegment = fn }

// OnFault registers a callback invoked once if per-window inference fails
// and the gate degrades to bypass for the rest of the session.
func (g *Gate) OnFault(fn func(error)) { g.onFault = fn }

// Push feeds newly captured samples through the gate. Safe to call
// repeatedly with arbitrarily sized chunks; windowing accumulates across
// calls.
func (g *Gate) Push(ctx context.Context, samples []int16) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.bypassForSession {
		g.emit(samples)
		return
	}

	g.pending = append(g.pending, samples...)
	for len(g.pending) >= g.windowSamples {
		window := g.pending[:g.windowSamples]
		g.pending = append([]int16(nil), g.pending[g.windowSamples:]...)
		g.processWindow(ctx, window)
	}
}

func (g *Gate) processWindow(ctx context.Context, window []int16) {
	prob, err := g.model.Classify(ctx, window)
	if err != nil {
		g.degradeToBypass(err)
		g.emit(window)
		return
	}
	isSpeech := prob >= g.cfg.Threshold

	switch g.state {
	case stateIdle:
		if isSpeech {
			g.startSegment(window)
		} else {
			g.trackLookback(window)
		}
	case stateInSegment:
		g.emit(window)
		if !isSpeech {
			// This window is the first of the hangover run.
			g.state = stateHangover
			g.hangoverRemaining = g.hangoverWindows - 1
			if g.hangoverRemaining <= 0 {
				g.endSegment()
			}
		}
	case stateHangover:
		g.emit(window)
		if isSpeech {
			g.state = stateInSegment
		} else {
			g.hangoverRemaining--
			if g.hangoverRemaining <= 0 {
				g.endSegment()
			}
		}
	}
}

func (g *Gate) trackLookback(window []int16) {
	cp := append([]int16(nil), window...)
	g.lookback = append(g.lookback, cp)
	if len(g.lookback) > g.preRollWindows {
		g.lookback = g.lookback[len(g.lookback)-g.preRollWindows:]
	}
}

// startSegment begins a segment with window as the triggering (speech)
// window. It emits the full preRollWindows of prior context ahead of
// window, which is emitted last so no buffered context is displaced to make
// room for it.
func (g *Gate) startSegment(window []int16) {
	g.state = stateInSegment
	for _, w := range g.lookback {
		g.emit(w)
	}
	g.lookback = g.lookback[:0]
	g.emit(window)
	if g.onSegment != nil {
		g.onSegment(true)
	}
}

func (g *Gate) endSegment() {
	g.state = stateIdle
	g.hangoverRemaining = 0
	if g.onSegment != nil {
		g.onSegment(false)
	}
}

func (g *Gate) degradeToBypass(err error) {
	g.bypassForSession = true
	if !g.faultReported {
		g.faultReported = true
		if g.onFault != nil {
			g.onFault(err)
		} else {
			slog.Error("vad model inference failed, degrading to bypass", "error", err)
		}
	}
	if g.state != stateIdle {
		g.endSegment()
	}
}

func (g *Gate) emit(samples []int16) {
	if len(samples) == 0 || g.onBytes == nil {
		return
	}
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	g.onBytes(buf)
}

// Flush terminates any in-progress segment at session stop, per spec §4.3's
// edge case. Safe to call multiple times; subsequent calls are no-ops.
func (g *Gate) Flush() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != stateIdle {
		g.endSegment()
	}
	if len(g.pending) > 0 && g.bypassForSession {
		g.emit(g.pending)
		g.pending = nil
	}
}

// Close releases the underlying model, if any.
func (g *Gate) Close() error {
	if g.model == nil {
		return nil
	}
	return g.model.Close()
}
