package device

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyntheticDriverDeliversFrames(t *testing.T) {
	d := newSyntheticDriver(FactoryOptions{SyntheticWaveform: WaveformSine, SyntheticFrequencyHz: 440})
	cfg := Config{SampleRate: 16000, Channels: 1, FrameSizeMs: 10}

	var mu sync.Mutex
	var frames [][]int16
	err := d.Start(cfg, "", func(samples []int16) {
		mu.Lock()
		defer mu.Unlock()
		cp := make([]int16, len(samples))
		copy(cp, samples)
		frames = append(frames, cp)
	})
	require.NoError(t, err)
	require.True(t, d.IsRunning())

	time.Sleep(50 * time.Millisecond)
	d.Stop()
	assert.False(t, d.IsRunning())

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, frames)
	assert.Equal(t, frameSamples(cfg), len(frames[0]))
}

func TestSyntheticDriverSilenceIsAllZero(t *testing.T) {
	d := newSyntheticDriver(FactoryOptions{SyntheticWaveform: WaveformSilence})
	cfg := Config{SampleRate: 8000, Channels: 1, FrameSizeMs: 20}

	done := make(chan []int16, 1)
	err := d.Start(cfg, "", func(samples []int16) {
		select {
		case done <- append([]int16(nil), samples...):
		default:
		}
	})
	require.NoError(t, err)
	defer d.Stop()

	select {
	case frame := <-done:
		for _, s := range frame {
			assert.Zero(t, s)
		}
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
	}
}

func TestSyntheticStopIsIdempotent(t *testing.T) {
	d := newSyntheticDriver(FactoryOptions{})
	require.NoError(t, d.Start(Config{SampleRate: 16000, Channels: 1, FrameSizeMs: 10}, "", nil))
	d.Stop()
	d.Stop()
	assert.False(t, d.IsRunning())
}

func TestDriverFactorySelectsSyntheticWhenRequested(t *testing.T) {
	drv, err := New(KindSynthetic, FactoryOptions{})
	require.NoError(t, err)
	_, ok := drv.(*syntheticDriver)
	assert.True(t, ok)
}

func TestDriverFactoryUnknownKind(t *testing.T) {
	_, err := New(Kind("bogus"), FactoryOptions{})
	assert.Error(t, err)
}
