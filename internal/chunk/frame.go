// Package chunk accumulates gated PCM bytes into fixed-duration chunks and
// frames them for the wire, per spec §4.4.
package chunk

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed byte length of a Frame's header, preceding the
// payload.
const HeaderSize = 1 + 1 + 2 + 8

// WireVersion is the only framing version this core emits or accepts.
const WireVersion uint8 = 1

// FlagFinal marks the final chunk of a session; bit 0 of the flags byte.
const FlagFinal uint8 = 1 << 0

// Frame is one on-wire unit: a header plus a payload of interleaved s16 LE
// mono samples.
type Frame struct {
	SeqNo       uint16
	CapturedAt  uint64 // unix milliseconds
	IsFinal     bool
	Payload     []byte // raw s16 LE sample bytes
}

// Encode serializes f per the wire layout:
//
//	ver(u8) flags(u8) seq_no(u16 BE) captured_at_unix_ms(u64 BE) payload(i16 LE samples)
func (f Frame) Encode() []byte {
	buf := make([]byte, HeaderSize+len(f.Payload))
	buf[0] = WireVersion
	var flags uint8
	if f.IsFinal {
		flags |= FlagFinal
	}
	buf[1] = flags
	binary.BigEndian.PutUint16(buf[2:4], f.SeqNo)
	binary.BigEndian.PutUint64(buf[4:12], f.CapturedAt)
	copy(buf[HeaderSize:], f.Payload)
	return buf
}

// Decode parses a wire frame. Returns an error if b is shorter than
// HeaderSize, the payload length is odd (not a whole number of s16
// samples), or the version byte is unrecognized.
func Decode(b []byte) (Frame, error) {
	if len(b) < HeaderSize {
		return Frame{}, fmt.Errorf("chunk: frame too short: %d bytes", len(b))
	}
	ver := b[0]
	if ver != WireVersion {
		return Frame{}, fmt.Errorf("chunk: unsupported frame version %d", ver)
	}
	payload := b[HeaderSize:]
	if len(payload)%2 != 0 {
		return Frame{}, fmt.Errorf("chunk: payload length %d is not a whole number of s16 samples", len(payload))
	}
	flags := b[1]
	return Frame{
		SeqNo:      binary.BigEndian.Uint16(b[2:4]),
		CapturedAt: binary.BigEndian.Uint64(b[4:12]),
		IsFinal:    flags&FlagFinal != 0,
		Payload:    payload,
	}, nil
}
