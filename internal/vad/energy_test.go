package vad

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silence(n int) []int16 { return make([]int16, n) }

func tone(n int, amplitude float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amplitude * 32767 * math.Sin(float64(i)*0.3))
	}
	return out
}

func TestEnergyModelFirstWindowWarmsUpAsSilence(t *testing.T) {
	m := NewEnergyModel(1.0)
	prob, err := m.Classify(context.Background(), tone(480, 0.5))
	require.NoError(t, err)
	assert.Zero(t, prob)
}

func TestEnergyModelLoudAfterQuietIsSpeech(t *testing.T) {
	m := NewEnergyModel(1.0)
	ctx := context.Background()
	_, err := m.Classify(ctx, silence(480))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, _ = m.Classify(ctx, silence(480))
	}
	prob, err := m.Classify(ctx, tone(480, 0.8))
	require.NoError(t, err)
	assert.Greater(t, prob, 0.5)
}

func TestEnergyModelResetClearsNoiseFloor(t *testing.T) {
	m := NewEnergyModel(1.0)
	ctx := context.Background()
	_, _ = m.Classify(ctx, tone(480, 0.9))
	m.Reset()
	assert.False(t, m.warmed)
}
