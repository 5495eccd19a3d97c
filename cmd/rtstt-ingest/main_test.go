package main

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

	"github.com/rtstt/ingestcore/internal/rtstterr"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func startDrainServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		ctx := context.Background()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func noEnv(string) string { return "" }

func TestRunStopsCleanlyAfterTestDuration(t *testing.T) {
	srv := startDrainServer(t)

	args := []string{
		"--ws-url", wsURL(srv),
		"--driver", "synthetic",
		"--sample-rate", "8000",
		"--chunk-ms", "50",
		"--test-duration", "1",
		"--log-level", "error",
	}

	start := time.Now()
	code := run(args, noEnv)
	elapsed := time.Since(start)

	assert.Equal(t, exitOK, code)
	assert.Less(t, elapsed, 5*time.Second)
}

func TestRunRejectsBadConfig(t *testing.T) {
	code := run([]string{}, noEnv)
	assert.Equal(t, exitConfigError, code)
}

func TestRunListDevicesExitsCleanly(t *testing.T) {
	code := run([]string{"--list-devices", "--driver", "synthetic"}, noEnv)
	assert.Equal(t, exitOK, code)
}

func TestExitCodeForErrMapping(t *testing.T) {
	require.Equal(t, exitConfigError, exitCodeForErr(rtstterr.Wrapf(rtstterr.KindConfig, "bad config")))
	require.Equal(t, exitDeviceUnavailable, exitCodeForErr(rtstterr.Wrapf(rtstterr.KindDevice, "no device")))
}
