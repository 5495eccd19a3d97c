package session

import (
	"sync/atomic"
	"time"
)

// Stats holds the live counters backing Snapshot. All fields are accessed
// through atomics so a reader never needs the controller's lock; per spec
// §5, snapshots are not required to be globally consistent.
type Stats struct {
	startedAt time.Time

	chunksSent  atomic.Uint64
	bytesSent   atomic.Uint64
	reconnects  atomic.Uint64
	errors      atomic.Uint64
	protocolIgnored atomic.Uint64
}

// Snapshot is a point-in-time copy of the controller's statistics, per
// spec §4.5.
type Snapshot struct {
	State            State
	Uptime           time.Duration
	ChunksSent       uint64
	BytesSent        uint64
	Reconnects       uint64
	Errors           uint64
	ProtocolIgnored  uint64
	RingFillPercent  float64
	RingBytesWritten uint64
	RingBytesOverwritten uint64
}

func newStats() *Stats {
	return &Stats{startedAt: time.Now()}
}

func (s *Stats) recordChunkSent(bytes int) {
	s.chunksSent.Add(1)
	s.bytesSent.Add(uint64(bytes))
}

func (s *Stats) recordReconnect() { s.reconnects.Add(1) }
func (s *Stats) recordError()     { s.errors.Add(1) }
func (s *Stats) recordProtocolIgnored() { s.protocolIgnored.Add(1) }
