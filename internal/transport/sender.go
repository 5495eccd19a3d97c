package transport

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rtstt/ingestcore/internal/chunk"
	"github.com/rtstt/ingestcore/internal/rtstterr"
)

// SenderConfig configures chunk transmission and heartbeat behavior.
type SenderConfig struct {
	SendTimeout   time.Duration // default 5s
	HeartbeatEvery time.Duration // default 15s
}

// ReplySink receives raw inbound message payloads. JSON parsing is the
// sink's responsibility; the sender only forwards bytes.
type ReplySink func(payload []byte)

// Sender frames chunks and transmits them over a Conn, emitting idle-period
// heartbeat pings and forwarding inbound replies to a sink. One Sender per
// Conn; not safe for concurrent SendChunk calls.
type Sender struct {
	conn *Conn
	cfg  SenderConfig

	lastSendUnixNano atomic.Int64

	stopHeartbeat chan struct{}
	stopReplies   chan struct{}
}

// NewSender wraps conn. If sink is non-nil, a goroutine forwards every
// inbound reply to it until the Sender is closed or the connection's reply
// channel closes.
func NewSender(conn *Conn, cfg SenderConfig, sink ReplySink) *Sender {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	if cfg.HeartbeatEvery <= 0 {
		cfg.HeartbeatEvery = 15 * time.Second
	}
	s := &Sender{
		conn:          conn,
		cfg:           cfg,
		stopHeartbeat: make(chan struct{}),
		stopReplies:   make(chan struct{}),
	}
	s.lastSendUnixNano.Store(time.Now().UnixNano())

	go s.heartbeatLoop()
	if sink != nil {
		go s.replyLoop(sink)
	}
	return s
}

// SendChunk frames f and transmits it, enforcing SendTimeout as a hard
// deadline. A timeout or write error is reported as a KindTransport error so
// the session controller can treat it as a connection fault; the sender does
// not retry or queue internally.
func (s *Sender) SendChunk(ctx context.Context, f chunk.Frame) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()

	err := s.conn.WriteBinary(ctx, f.Encode())
	s.lastSendUnixNano.Store(time.Now().UnixNano())
	if err != nil {
		if ctx.Err() != nil {
			return rtstterr.Wrapf(rtstterr.KindTransport, "send timeout after %s: %v", s.cfg.SendTimeout, err)
		}
		return rtstterr.Wrap(rtstterr.KindTransport, err)
	}
	return nil
}

func (s *Sender) heartbeatLoop() {
	ticker := time.NewTicker(s.cfg.HeartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopHeartbeat:
			return
		case <-ticker.C:
			last := time.Unix(0, s.lastSendUnixNano.Load())
			if time.Since(last) < s.cfg.HeartbeatEvery {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SendTimeout)
			_ = s.conn.WriteText(ctx, []byte("ping"))
			cancel()
		}
	}
}

func (s *Sender) replyLoop(sink ReplySink) {
	for {
		select {
		case <-s.stopReplies:
			return
		case payload, ok := <-s.conn.Replies():
			if !ok {
				return
			}
			sink(payload)
		}
	}
}

// Close stops the heartbeat and reply loops. It does not close the
// underlying Conn; the caller (session controller) owns that lifecycle.
func (s *Sender) Close() error {
	select {
	case <-s.stopHeartbeat:
	default:
		close(s.stopHeartbeat)
	}
	select {
	case <-s.stopReplies:
	default:
		close(s.stopReplies)
	}
	return nil
}
