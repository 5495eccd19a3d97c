package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDownmixInt32ToMonoInt16Averages(t *testing.T) {
	// Two channels, two frames. Channel values chosen so the average is exact.
	interleaved := []int32{
		1 << 16, 3 << 16, // frame 0: avg 2<<16
		5 << 16, 7 << 16, // frame 1: avg 6<<16
	}
	out := make([]int16, 2)
	downmixInt32ToMonoInt16(interleaved, 2, out)
	assert.Equal(t, int16(2), out[0])
	assert.Equal(t, int16(6), out[1])
}

func TestDownmixInt32ToMonoInt16PassthroughMono(t *testing.T) {
	interleaved := []int32{1 << 16, 2 << 16}
	out := make([]int16, 2)
	downmixInt32ToMonoInt16(interleaved, 1, out)
	assert.Equal(t, int16(1), out[0])
	assert.Equal(t, int16(2), out[1])
}

func TestDownmixFloat32ToMonoAverages(t *testing.T) {
	interleaved := []float32{0.0, 1.0, 0.5, 0.5}
	out := downmixFloat32ToMono(interleaved, 2)
	assert.Equal(t, []float32{0.5, 0.5}, out)
}

func TestDownmixFloat32ToMonoPassthroughMono(t *testing.T) {
	interleaved := []float32{0.1, 0.2}
	out := downmixFloat32ToMono(interleaved, 1)
	assert.Equal(t, interleaved, out)
}
