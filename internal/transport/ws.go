// Package transport carries framed chunks to a downstream WebSocket endpoint
// and forwards inbound replies to the caller, grounded on the write/read
// loop split used by the pack's Deepgram streaming client.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// DialOptions configures the outbound connection.
type DialOptions struct {
	URL     string
	Headers http.Header
}

// Conn wraps a coder/websocket connection with separate read and write
// loops, decoupling the sender's per-chunk Write calls from inbound reply
// delivery the same way the pack's deepgram session does.
type Conn struct {
	conn *websocket.Conn

	outbound chan outboundMsg
	replies  chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	writeErr chan error
}

type outboundMsg struct {
	kind websocket.MessageType
	data []byte
	ack  chan error
}

// Dial opens a new connection and starts its read/write loops.
func Dial(ctx context.Context, opts DialOptions) (*Conn, error) {
	conn, _, err := websocket.Dial(ctx, opts.URL, &websocket.DialOptions{
		HTTPHeader: opts.Headers,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: dial: %w", err)
	}

	c := &Conn{
		conn:     conn,
		outbound: make(chan outboundMsg, 8),
		replies:  make(chan []byte, 64),
		done:     make(chan struct{}),
	}
	// ctx bounds only the handshake: the loops outlive it (callers commonly
	// cancel a connect timeout right after Dial returns) and end on Close.
	loopCtx := context.WithoutCancel(ctx)
	c.wg.Add(2)
	go c.writeLoop(loopCtx)
	go c.readLoop(loopCtx)
	return c, nil
}

// WriteBinary sends a binary message and blocks until it has been handed to
// the connection or ctx is done. Returns the write error, if any.
func (c *Conn) WriteBinary(ctx context.Context, data []byte) error {
	return c.send(ctx, websocket.MessageBinary, data)
}

// WriteText sends a text message (used for heartbeat pings).
func (c *Conn) WriteText(ctx context.Context, data []byte) error {
	return c.send(ctx, websocket.MessageText, data)
}

func (c *Conn) send(ctx context.Context, kind websocket.MessageType, data []byte) error {
	ack := make(chan error, 1)
	msg := outboundMsg{kind: kind, data: data, ack: ack}
	select {
	case c.outbound <- msg:
	case <-c.done:
		return fmt.Errorf("transport: connection closed")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Replies returns the channel of raw inbound message payloads. Closed when
// the read loop exits (peer close, transport error, or Close).
func (c *Conn) Replies() <-chan []byte { return c.replies }

func (c *Conn) writeLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case msg, ok := <-c.outbound:
			if !ok {
				return
			}
			err := c.conn.Write(ctx, msg.kind, msg.data)
			msg.ack <- err
			if err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) readLoop(ctx context.Context) {
	defer c.wg.Done()
	defer close(c.replies)
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		cp := append([]byte(nil), data...)
		select {
		case c.replies <- cp:
		case <-c.done:
			return
		}
	}
}

// Close terminates the connection with a normal closure code. Idempotent.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.conn.Close(websocket.StatusNormalClosure, "session closed")
		c.wg.Wait()
	})
	return err
}

// CloseWithError terminates the connection with an internal-error close
// code. The session controller uses it when it stops after a permanent
// failure; a transport fault during streaming closes with Close instead.
// Idempotent, sharing Close's once-guard.
func (c *Conn) CloseWithError(reason string) error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.conn.Close(websocket.StatusInternalError, reason)
		c.wg.Wait()
	})
	return err
}
