// Package ringbuf provides a bounded single-producer/single-consumer byte
// queue that decouples a real-time audio callback from an asynchronous
// consumer task. The producer side never blocks and never allocates; on
// overflow the oldest bytes in the queue are overwritten and counted.
package ringbuf

import (
	"sync/atomic"
)

// RingBuffer is a bounded FIFO of bytes. Capacity is fixed at construction.
// Safe for exactly one producer goroutine calling Push and exactly one
// consumer goroutine calling PopUpTo/Close concurrently.
type RingBuffer struct {
	buf  []byte
	cap  uint64
	head atomic.Uint64 // total bytes ever written
	tail atomic.Uint64 // total bytes ever consumed (or overwritten away)

	bytesWritten     atomic.Uint64
	bytesOverwritten atomic.Uint64

	closed atomic.Bool
	wake   chan struct{} // signals the consumer that new data (or closure) arrived
}

// New creates a RingBuffer with the given byte capacity. Capacity must be
// positive.
func New(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{
		buf:  make([]byte, capacity),
		cap:  uint64(capacity),
		wake: make(chan struct{}, 1),
	}
}

// Cap returns the buffer's fixed byte capacity.
func (r *RingBuffer) Cap() int { return int(r.cap) }

// Push copies data into the ring, never blocking. If data would overflow the
// remaining capacity, the oldest bytes are dropped to make room and the
// number of overwritten bytes is returned (and added to BytesOverwritten).
// Producer-only; must not be called concurrently with itself.
func (r *RingBuffer) Push(data []byte) (overwritten int) {
	if len(data) == 0 {
		return 0
	}
	// A single push larger than the whole ring only ever needs to retain
	// the capacity's worth of trailing bytes.
	if uint64(len(data)) > r.cap {
		overwritten += len(data) - int(r.cap)
		data = data[uint64(len(data))-r.cap:]
	}

	head := r.head.Load()
	n := uint64(len(data))

	// Make room by advancing tail (the consumer's read position) past
	// whatever this push would overwrite. The producer owns this
	// advancement; the consumer's CAS-based PopUpTo tolerates tail moving
	// forward underneath it.
	for {
		tail := r.tail.Load()
		used := head - tail
		available := r.cap - used
		if n <= available {
			break
		}
		need := n - available
		want := tail + need
		if r.tail.CompareAndSwap(tail, want) {
			overwritten += int(need)
			break
		}
		// Another observer raced the tail forward already; retry.
	}

	for i, b := range data {
		r.buf[(head+uint64(i))%r.cap] = b
	}
	r.head.Add(n)
	r.bytesWritten.Add(n)
	if overwritten > 0 {
		r.bytesOverwritten.Add(uint64(overwritten))
	}

	select {
	case r.wake <- struct{}{}:
	default:
	}

	return overwritten
}

// PopUpTo returns up to n bytes, blocking until at least one byte is
// available or the buffer is closed. Returns a nil/empty slice only once the
// buffer is closed and fully drained. Consumer-only; must not be called
// concurrently with itself.
func (r *RingBuffer) PopUpTo(n int) []byte {
	if n <= 0 {
		return nil
	}
	for {
		tail := r.tail.Load()
		head := r.head.Load()
		avail := head - tail
		if avail > 0 {
			take := uint64(n)
			if take > avail {
				take = avail
			}
			out := make([]byte, take)
			for i := range out {
				out[i] = r.buf[(tail+uint64(i))%r.cap]
			}
			if !r.tail.CompareAndSwap(tail, tail+take) {
				// The producer overwrote past us concurrently; retry with
				// fresh indices rather than double-counting.
				continue
			}
			return out
		}
		if r.closed.Load() {
			return nil
		}
		<-r.wake
	}
}

// Close unblocks any waiting PopUpTo call. Subsequent PopUpTo calls drain
// remaining bytes, then return nil. Idempotent.
func (r *RingBuffer) Close() {
	if r.closed.CompareAndSwap(false, true) {
		select {
		case r.wake <- struct{}{}:
		default:
		}
	}
}

// BytesWritten returns the total number of bytes ever pushed (including ones
// later overwritten).
func (r *RingBuffer) BytesWritten() uint64 { return r.bytesWritten.Load() }

// BytesOverwritten returns the total number of bytes dropped due to overrun.
func (r *RingBuffer) BytesOverwritten() uint64 { return r.bytesOverwritten.Load() }

// CurrentFillBytes returns the number of bytes currently queued.
func (r *RingBuffer) CurrentFillBytes() int {
	head := r.head.Load()
	tail := r.tail.Load()
	return int(head - tail)
}
