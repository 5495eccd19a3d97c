// Package vad turns a stream of mono PCM frames into speech segments: it
// windows incoming audio, classifies each window as speech or silence via a
// pluggable Model, and applies pre-roll/hangover/merge rules to emit stable
// segment boundaries instead of flickering on every classifier frame.
package vad

import "context"

// Model classifies one fixed-size window of mono s16 PCM and returns the
// probability (0..1) that it contains speech. Implementations must be safe
// for sequential reuse across windows from the same stream; they need not be
// goroutine-safe.
type Model interface {
	// Classify scores window, one full window of the Gate's configured
	// length (Config.WindowMs at Config.SampleRate; WindowSamples gives the
	// 30ms default). The Gate never classifies a partial window.
	Classify(ctx context.Context, window []int16) (speechProb float64, err error)
	// Reset clears any internal state (e.g. RNN hidden state) between
	// independent streams.
	Reset()
	// Close releases model resources (file handles, ONNX runtime sessions).
	Close() error
}

// WindowSamples returns the number of samples in one default 30ms
// classifier window at sampleRate, per spec §4.3.
func WindowSamples(sampleRate int) int {
	return sampleRate * 30 / 1000
}
