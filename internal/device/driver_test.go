package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateConfigRejectsNonPositiveFields(t *testing.T) {
	cases := []Config{
		{SampleRate: 0, Channels: 1, FrameSizeMs: 10},
		{SampleRate: 16000, Channels: 0, FrameSizeMs: 10},
		{SampleRate: 16000, Channels: 1, FrameSizeMs: 0},
	}
	for _, cfg := range cases {
		assert.Error(t, validateConfig(cfg))
	}
}

func TestValidateConfigAcceptsSaneValues(t *testing.T) {
	assert.NoError(t, validateConfig(Config{SampleRate: 16000, Channels: 1, FrameSizeMs: 20}))
}

func TestFrameDurationAndSamples(t *testing.T) {
	cfg := Config{SampleRate: 16000, Channels: 1, FrameSizeMs: 20}
	assert.Equal(t, 20*time.Millisecond, frameDuration(cfg))
	assert.Equal(t, 320, frameSamples(cfg))
}

func TestDeviceNotFoundErrWrapsSentinel(t *testing.T) {
	err := deviceNotFoundErr("nope")
	assert.ErrorContains(t, err, "nope")
}
