package transport_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtstt/ingestcore/internal/transport"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func startEchoServer(t *testing.T, handler func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDialAndWriteBinary(t *testing.T) {
	received := make(chan []byte, 1)
	srv := startEchoServer(t, func(conn *websocket.Conn) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_, data, err := conn.Read(ctx)
		if err == nil {
			received <- data
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, err := transport.Dial(ctx, transport.DialOptions{URL: wsURL(srv)})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteBinary(ctx, []byte("hello")))

	select {
	case data := <-received:
		assert.Equal(t, []byte("hello"), data)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the message")
	}
}

func TestRepliesForwardsInboundMessages(t *testing.T) {
	srv := startEchoServer(t, func(conn *websocket.Conn) {
		ctx := context.Background()
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"ack":true}`))
		time.Sleep(50 * time.Millisecond)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, err := transport.Dial(ctx, transport.DialOptions{URL: wsURL(srv)})
	require.NoError(t, err)
	defer conn.Close()

	select {
	case payload := <-conn.Replies():
		assert.JSONEq(t, `{"ack":true}`, string(payload))
	case <-time.After(2 * time.Second):
		t.Fatal("never received a reply")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	srv := startEchoServer(t, func(conn *websocket.Conn) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		conn.Read(ctx)
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, err := transport.Dial(ctx, transport.DialOptions{URL: wsURL(srv)})
	require.NoError(t, err)

	assert.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())
}
