package vad

import (
	"context"
	"math"
)

// EnergyModel is a dependency-free VAD model based on RMS energy relative to
// a slowly-adapting noise floor. It is the default classifier: no ONNX
// runtime, no native library, just arithmetic, so a session always has a
// working VAD even when the optional Silero backend isn't available on the
// host.
type EnergyModel struct {
	noiseFloor float64
	adaptRate  float64
	sensitivity float64
	warmed     bool
}

// NewEnergyModel builds an EnergyModel. sensitivity scales how far above the
// noise floor a window's RMS must be to register as speech; 1.0 is a
// reasonable default for close-mic capture.
func NewEnergyModel(sensitivity float64) *EnergyModel {
	if sensitivity <= 0 {
		sensitivity = 1.0
	}
	return &EnergyModel{
		noiseFloor:  1e-4,
		adaptRate:   0.05,
		sensitivity: sensitivity,
	}
}

func (m *EnergyModel) Classify(_ context.Context, window []int16) (float64, error) {
	if len(window) == 0 {
		return 0, nil
	}
	var sumSq float64
	for _, s := range window {
		v := float64(s) / 32768.0
		sumSq += v * v
	}
	rms := math.Sqrt(sumSq / float64(len(window)))

	if !m.warmed {
		m.noiseFloor = rms
		m.warmed = true
		return 0, nil
	}

	ratio := rms / (m.noiseFloor + 1e-9)
	// A window more than ~3x the noise floor (scaled by sensitivity) is
	// treated as speech; map that onto a smooth 0..1 score via a logistic
	// curve centered at the threshold ratio.
	threshold := 3.0 / m.sensitivity
	prob := 1 / (1 + math.Exp(-4*(ratio-threshold)))

	if ratio < 1.5 {
		m.noiseFloor = (1-m.adaptRate)*m.noiseFloor + m.adaptRate*rms
	}

	return prob, nil
}

func (m *EnergyModel) Reset() {
	m.noiseFloor = 1e-4
	m.warmed = false
}

func (m *EnergyModel) Close() error { return nil }
