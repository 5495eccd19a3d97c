// Command rtstt-ingest captures microphone audio, gates it through an
// optional VAD, chunks it, and streams the chunks to a WebSocket endpoint
// for downstream speech-to-text processing. See internal/config for the
// full flag and environment variable surface.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rtstt/ingestcore/internal/config"
	"github.com/rtstt/ingestcore/internal/device"
	"github.com/rtstt/ingestcore/internal/rtstterr"
	"github.com/rtstt/ingestcore/internal/session"
	"github.com/rtstt/ingestcore/internal/vad"
)

// Exit codes per spec §6.
const (
	exitOK                  = 0
	exitConfigError         = 2
	exitDeviceUnavailable   = 3
	exitPermanentConnectErr = 4
	exitInterrupted         = 130
)

func main() {
	os.Exit(run(os.Args[1:], os.Getenv))
}

func run(args []string, getenv func(string) string) int {
	cfg, err := config.Parse(args, getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfigError
	}

	setupLogging(cfg.LogLevel)

	if cfg.ListDevices {
		return listDevices(cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var model vad.Model
	if cfg.VADEnabled {
		model = vad.NewEnergyModel(1.0 / cfg.VADThreshold)
	}

	ctrl, err := session.New(cfg.ToSessionConfig(), model, func(payload []byte) {
		slog.Debug("reply received", "bytes", len(payload))
	})
	if err != nil {
		slog.Error("session construction failed", "error", err)
		return exitCodeForErr(err)
	}

	slog.Info("ingestion session starting",
		"session_id", ctrl.SessionID(), "ws_url", cfg.WSURL, "driver", cfg.Driver)

	if err := ctrl.Start(ctx); err != nil {
		slog.Error("session failed to start", "error", err)
		return exitCodeForErr(err)
	}

	var testTimer <-chan time.Time
	if cfg.TestDurationS > 0 {
		testTimer = time.After(time.Duration(cfg.TestDurationS) * time.Second)
	}

	interrupted := false
	select {
	case <-sigCh:
		interrupted = true
		slog.Info("shutdown signal received")
	case <-testTimer:
		slog.Info("test duration elapsed, stopping")
	case <-ctrl.Done():
		slog.Warn("session ended on its own", "error", ctrl.Err())
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.StopTimeoutMs)*time.Millisecond+time.Second)
	defer stopCancel()
	if err := ctrl.Stop(stopCtx); err != nil {
		slog.Warn("stop exceeded its budget", "error", err)
	}

	snap := ctrl.Snapshot()
	slog.Info("session stopped",
		"state", snap.State.String(),
		"uptime", snap.Uptime,
		"chunks_sent", snap.ChunksSent,
		"bytes_sent", snap.BytesSent,
		"reconnects", snap.Reconnects,
		"errors", snap.Errors,
		"ring_fill_percent", snap.RingFillPercent,
	)

	if ctrl.Err() != nil {
		return exitCodeForErr(ctrl.Err())
	}
	if interrupted {
		return exitInterrupted
	}
	return exitOK
}

func listDevices(cfg config.Config) int {
	drv, err := device.New(device.Kind(cfg.Driver), device.FactoryOptions{})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfigError
	}
	descriptors, err := drv.Enumerate()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitDeviceUnavailable
	}
	for _, d := range descriptors {
		fmt.Println(config.FormatDeviceLine(d))
	}
	return exitOK
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}

func exitCodeForErr(err error) int {
	switch rtstterr.KindOf(err) {
	case rtstterr.KindConfig:
		return exitConfigError
	case rtstterr.KindDevice:
		return exitDeviceUnavailable
	case rtstterr.KindTransport, rtstterr.KindInternal:
		return exitPermanentConnectErr
	default:
		return exitPermanentConnectErr
	}
}
