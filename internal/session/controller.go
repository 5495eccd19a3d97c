// Package session owns the end-to-end lifecycle of one streaming episode:
// dialing the transport, starting the capture driver, gating and chunking
// captured audio, and reconnecting with backoff on transport faults. It is
// the sole owner of the driver, ring buffer, gate, chunker, and transport;
// everything else in this module is a downward dependency, grounded on the
// pack's Reconnector pattern for the backoff/retry shape.
package session

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rtstt/ingestcore/internal/chunk"
	"github.com/rtstt/ingestcore/internal/device"
	"github.com/rtstt/ingestcore/internal/ringbuf"
	"github.com/rtstt/ingestcore/internal/rtstterr"
	"github.com/rtstt/ingestcore/internal/transport"
	"github.com/rtstt/ingestcore/internal/vad"
)

// State names the session controller's position in the spec's §4.5 state
// table.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateReconnecting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// backoffSchedule is the reconnect delay ladder from spec §4.5: 1s, 2s, 4s,
// 8s, 16s, capped at 30s thereafter. It is the sequence reconnectLoop
// produces with the default Reconnect config (InitialMs 1000, MaxMs 30000).
var backoffSchedule = []time.Duration{
	1 * time.Second, 2 * time.Second, 4 * time.Second,
	8 * time.Second, 16 * time.Second, 30 * time.Second,
}

// ReplySink receives raw inbound payloads, forwarded verbatim from the
// transport. Parsing (JSON) is the caller's responsibility.
type ReplySink func(payload []byte)

// VADConfig mirrors the vad.* options from spec §6.
type VADConfig struct {
	Enabled    bool
	Threshold  float64
	PreRollMs  int
	HangoverMs int
}

// ReconnectConfig mirrors the reconnect.* options from spec §6.
type ReconnectConfig struct {
	InitialMs  int
	MaxMs      int
	MaxRetries int // 0 means infinite
}

// Config is the full, immutable-after-start configuration for a Controller.
type Config struct {
	WSURL         string
	Headers       http.Header
	DriverKind    device.Kind
	DeviceID      string
	SampleRate    int
	Channels      int
	FrameMs       int
	BufferSeconds float64
	ChunkMs       int
	VAD           VADConfig
	HeartbeatMs   int
	Reconnect     ReconnectConfig
	StopTimeoutMs int
	ConnectTimeout time.Duration
	ReadIdleTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.Channels == 0 {
		c.Channels = 1
	}
	if c.FrameMs == 0 {
		c.FrameMs = 20
	}
	if c.BufferSeconds == 0 {
		c.BufferSeconds = 2.0
	}
	if c.ChunkMs == 0 {
		c.ChunkMs = 2000
	}
	if c.HeartbeatMs == 0 {
		c.HeartbeatMs = 15000
	}
	if c.Reconnect.InitialMs == 0 {
		c.Reconnect.InitialMs = 1000
	}
	if c.Reconnect.MaxMs == 0 {
		c.Reconnect.MaxMs = 30000
	}
	if c.StopTimeoutMs == 0 {
		c.StopTimeoutMs = 2000
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.ReadIdleTimeout == 0 {
		c.ReadIdleTimeout = 60 * time.Second
	}
	if c.VAD.Threshold == 0 {
		c.VAD.Threshold = 0.5
	}
	if c.VAD.PreRollMs == 0 {
		c.VAD.PreRollMs = 300
	}
	if c.VAD.HangoverMs == 0 {
		c.VAD.HangoverMs = 500
	}
	return c
}

// Controller drives one session instance through Idle -> Connecting ->
// Streaming <-> Reconnecting -> Stopped. A Controller is used once; start a
// new one for a new session. Exported methods are safe for concurrent use.
type Controller struct {
	cfg       Config
	sessionID string

	driver  device.Driver
	model   vad.Model // nil when VAD disabled
	gate    *vad.Gate
	chunker *chunk.Chunker

	stats *Stats

	mu    sync.Mutex
	state State
	conn  *transport.Conn
	sender *transport.Sender
	ring   *ringbuf.RingBuffer

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}

	replySink ReplySink

	faultCh chan error // single-slot: driver/sender faults funnel here

	lastErr error // set once on permanent failure; read via Err after Done closes
}

// New constructs a Controller. model is the VAD classifier to use when
// cfg.VAD.Enabled is true; pass nil when VAD is disabled.
func New(cfg Config, model vad.Model, replySink ReplySink) (*Controller, error) {
	cfg = cfg.withDefaults()
	if cfg.WSURL == "" {
		return nil, rtstterr.Wrapf(rtstterr.KindConfig, "ws_url must not be empty")
	}
	if cfg.VAD.Enabled && model == nil {
		return nil, rtstterr.Wrapf(rtstterr.KindConfig, "vad.enabled requires a model")
	}

	drv, err := device.New(cfg.DriverKind, device.FactoryOptions{})
	if err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:       cfg,
		sessionID: uuid.NewString(),
		driver:    drv,
		model:     model,
		state:     StateIdle,
		stats:     newStats(),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		replySink: replySink,
		faultCh:   make(chan error, 1),
	}

	byteRate := cfg.SampleRate * 2 // mono s16
	chunkTargetBytes := byteRate * cfg.ChunkMs / 1000
	c.chunker = chunk.New(chunk.Config{TargetBytes: chunkTargetBytes, FlushOnBoundary: false}, nowUnixMs)

	if cfg.VAD.Enabled {
		vcfg := vad.Config{
			SampleRate: cfg.SampleRate,
			WindowMs:   30,
			Threshold:  cfg.VAD.Threshold,
			PreRollMs:  cfg.VAD.PreRollMs,
			HangoverMs: cfg.VAD.HangoverMs,
		}
		c.gate = vad.NewGate(vcfg, model, func(b []byte) { c.chunker.Write(b, c.emitFrame) })
		c.gate.OnFault(func(err error) {
			c.stats.recordError()
			slog.Error("vad inference fault, degraded to bypass", "session_id", c.sessionID, "error", err)
		})
	}

	return c, nil
}

func nowUnixMs() uint64 { return uint64(time.Now().UnixMilli()) }

// SessionID returns the stable identifier for this session, unchanged
// across reconnects within the session's lifetime.
func (c *Controller) SessionID() string { return c.sessionID }

// State returns the controller's current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a point-in-time statistics snapshot.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	state := c.state
	ring := c.ring
	c.mu.Unlock()

	fill := 0.0
	var written, overwritten uint64
	if ring != nil {
		written = ring.BytesWritten()
		overwritten = ring.BytesOverwritten()
		if capBytes := ring.Cap(); capBytes > 0 {
			fill = float64(ring.CurrentFillBytes()) / float64(capBytes) * 100
		}
	}

	return Snapshot{
		State:                state,
		Uptime:               time.Since(c.stats.startedAt),
		ChunksSent:           c.stats.chunksSent.Load(),
		BytesSent:            c.stats.bytesSent.Load(),
		Reconnects:           c.stats.reconnects.Load(),
		Errors:               c.stats.errors.Load(),
		ProtocolIgnored:      c.stats.protocolIgnored.Load(),
		RingFillPercent:      fill,
		RingBytesWritten:     written,
		RingBytesOverwritten: overwritten,
	}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Start begins the session: it dials the transport, starts the driver, and
// runs the consumer pipeline on a background goroutine. Returns nil once the
// first connection attempt has either succeeded (Streaming) or failed
// (Reconnecting, with retries continuing in the background; the driver is
// started when a retry succeeds). Returns the driver's error if the capture
// device fails to start after a successful dial. Reconnection after that
// point is reported only via Snapshot, and a permanent failure via Done and
// Err.
func (c *Controller) Start(ctx context.Context) error {
	c.setState(StateConnecting)

	ringBytes := int(float64(c.cfg.SampleRate) * 2 * c.cfg.BufferSeconds)
	ring := ringbuf.New(ringBytes)
	c.mu.Lock()
	c.ring = ring
	c.mu.Unlock()

	driverCfg := device.Config{
		SampleRate:    c.cfg.SampleRate,
		Channels:      c.cfg.Channels,
		FrameSizeMs:   c.cfg.FrameMs,
		BufferSeconds: c.cfg.BufferSeconds,
	}

	onFrame := func(samples []int16) {
		buf := make([]byte, len(samples)*2)
		for i, s := range samples {
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
		}
		ring.Push(buf)
	}

	connectCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	conn, err := transport.Dial(connectCtx, transport.DialOptions{URL: c.cfg.WSURL, Headers: c.cfg.Headers})
	cancel()
	if err != nil {
		c.setState(StateReconnecting)
		go c.consumeLoop(ring)
		go c.reconnectLoop(ctx, ring, onFrame, driverCfg)
		return nil
	}

	if err := c.driver.Start(driverCfg, c.cfg.DeviceID, onFrame); err != nil {
		_ = conn.Close()
		return err
	}

	c.attachConn(conn)
	c.setState(StateStreaming)

	go c.consumeLoop(ring)
	go c.runLoop(ctx, ring, onFrame, driverCfg)
	return nil
}

func (c *Controller) attachConn(conn *transport.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.sender = transport.NewSender(conn, transport.SenderConfig{
		HeartbeatEvery: time.Duration(c.cfg.HeartbeatMs) * time.Millisecond,
	}, c.handleReply)
	c.mu.Unlock()
}

func (c *Controller) handleReply(payload []byte) {
	if len(payload) == 0 {
		c.stats.recordProtocolIgnored()
		return
	}
	if c.replySink != nil {
		c.replySink(payload)
	}
}

// consumeLoop drains the ring buffer and feeds bytes to the gate (or
// directly to the chunker when VAD is disabled), per spec §5's consumer
// task. Exits when the ring buffer is closed.
func (c *Controller) consumeLoop(ring *ringbuf.RingBuffer) {
	const popChunkBytes = 4096
	for {
		data := ring.PopUpTo(popChunkBytes)
		if data == nil {
			return
		}
		if c.gate != nil {
			samples := bytesToInt16(data)
			c.gate.Push(context.Background(), samples)
		} else {
			c.chunker.Write(data, c.emitFrame)
		}
	}
}

func bytesToInt16(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

func (c *Controller) emitFrame(f chunk.Frame) {
	c.mu.Lock()
	sender := c.sender
	c.mu.Unlock()
	if sender == nil {
		return
	}
	ctx := context.Background()
	if err := sender.SendChunk(ctx, f); err != nil {
		c.stats.recordError()
		select {
		case c.faultCh <- err:
		default:
		}
		return
	}
	c.stats.recordChunkSent(len(f.Payload))
}

// runLoop watches for a transport fault while Streaming and transitions to
// Reconnecting, per the spec §4.5 state table.
func (c *Controller) runLoop(ctx context.Context, ring *ringbuf.RingBuffer, onFrame device.FrameFunc, driverCfg device.Config) {
	select {
	case <-c.stopCh:
		return
	case <-c.faultCh:
		c.stats.recordReconnect()
		c.teardownConn()
		c.setState(StateReconnecting)
		c.reconnectLoop(ctx, ring, onFrame, driverCfg)
	}
}

func (c *Controller) teardownConn() {
	c.mu.Lock()
	sender := c.sender
	conn := c.conn
	c.sender = nil
	c.conn = nil
	c.mu.Unlock()
	if sender != nil {
		sender.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
}

// reconnectLoop retries the transport connection with a backoff that starts
// at Reconnect.InitialMs and doubles per failed attempt up to
// Reconnect.MaxMs, keeping the driver running so captured bytes continue
// flowing into (and, on overrun, being overwritten within) the ring buffer.
func (c *Controller) reconnectLoop(ctx context.Context, ring *ringbuf.RingBuffer, onFrame device.FrameFunc, driverCfg device.Config) {
	attempt := 0
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}
		if c.cfg.Reconnect.MaxRetries > 0 && attempt >= c.cfg.Reconnect.MaxRetries {
			slog.Error("reconnect retries exhausted", "session_id", c.sessionID, "attempts", attempt)
			c.permanentFailure(fmt.Errorf("%w after %d attempts", rtstterr.ErrRetriesExhausted, attempt))
			return
		}

		connectCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		conn, err := transport.Dial(connectCtx, transport.DialOptions{URL: c.cfg.WSURL, Headers: c.cfg.Headers})
		cancel()
		if err == nil {
			if !c.driver.IsRunning() {
				_ = c.driver.Start(driverCfg, c.cfg.DeviceID, onFrame)
			}
			c.attachConn(conn)
			c.setState(StateStreaming)
			go c.runLoop(ctx, ring, onFrame, driverCfg)
			return
		}

		delay := time.Duration(c.cfg.Reconnect.InitialMs) * time.Millisecond
		maxDelay := time.Duration(c.cfg.Reconnect.MaxMs) * time.Millisecond
		for i := 0; i < attempt && delay < maxDelay; i++ {
			delay *= 2
		}
		if delay > maxDelay {
			delay = maxDelay
		}
		attempt++
		slog.Warn("reconnect attempt failed", "session_id", c.sessionID, "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-c.stopCh:
			return
		case <-time.After(delay):
		}
	}
}

func backoffDelay(attempt int) time.Duration {
	if attempt >= len(backoffSchedule) {
		return backoffSchedule[len(backoffSchedule)-1]
	}
	return backoffSchedule[attempt]
}

func (c *Controller) permanentFailure(err error) {
	c.stats.recordError()
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	_ = c.stopInternal(context.Background(), true)
	slog.Error("session terminated: permanent connect failure", "session_id", c.sessionID, "error", err)
}

// Err returns the error that caused a permanent session failure, or nil if
// the session stopped cleanly (or hasn't stopped yet). Meaningful after Done
// is closed.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Stop terminates the session, emitting a final chunk, closing the
// transport, stopping the driver, and closing the ring buffer. Returns
// within cfg.StopTimeoutMs regardless of caller-supplied ctx. Idempotent.
func (c *Controller) Stop(ctx context.Context) error {
	return c.stopInternal(ctx, false)
}

func (c *Controller) stopInternal(ctx context.Context, permanentFailure bool) error {
	var stopErr error
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.setState(StateStopped)

		done := make(chan struct{})
		go func() {
			defer close(done)
			if c.gate != nil {
				c.gate.Flush()
				_ = c.gate.Close()
			}
			c.chunker.Flush(c.emitFrame)

			c.driver.Stop()

			c.mu.Lock()
			sender := c.sender
			conn := c.conn
			ring := c.ring
			c.mu.Unlock()
			if ring != nil {
				ring.Close()
			}
			if sender != nil {
				sender.Close()
			}
			if conn != nil {
				if permanentFailure {
					_ = conn.CloseWithError("permanent reconnect failure")
				} else {
					_ = conn.Close()
				}
			}
		}()

		timeout := time.Duration(c.cfg.StopTimeoutMs) * time.Millisecond
		select {
		case <-done:
		case <-time.After(timeout):
			stopErr = fmt.Errorf("session: stop exceeded %s budget", timeout)
		}
		close(c.doneCh)
	})
	return stopErr
}

// Done returns a channel closed once Stop has fully completed.
func (c *Controller) Done() <-chan struct{} { return c.doneCh }
