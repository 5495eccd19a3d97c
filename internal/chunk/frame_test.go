package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameEncodeDecodeRoundTrip(t *testing.T) {
	f := Frame{SeqNo: 42, CapturedAt: 1700000000000, IsFinal: true, Payload: []byte{1, 2, 3, 4}}
	encoded := f.Encode()
	assert.Len(t, encoded, HeaderSize+4)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, f.SeqNo, decoded.SeqNo)
	assert.Equal(t, f.CapturedAt, decoded.CapturedAt)
	assert.True(t, decoded.IsFinal)
	assert.Equal(t, f.Payload, decoded.Payload)
}

func TestFrameEncodeNonFinalClearsFlag(t *testing.T) {
	f := Frame{SeqNo: 1, CapturedAt: 5, IsFinal: false, Payload: []byte{9, 9}}
	encoded := f.Encode()
	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.False(t, decoded.IsFinal)
}

func TestDecodeRejectsShortFrame(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	f := Frame{SeqNo: 1, CapturedAt: 1}
	encoded := f.Encode()
	encoded[0] = 99
	_, err := Decode(encoded)
	assert.Error(t, err)
}

func TestDecodeRejectsOddPayloadLength(t *testing.T) {
	f := Frame{SeqNo: 1, CapturedAt: 1, Payload: []byte{1, 2, 3}}
	encoded := f.Encode()
	_, err := Decode(encoded)
	assert.Error(t, err)
}
