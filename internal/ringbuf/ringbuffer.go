// Package ringbuf implements the lock-free single-producer/single-consumer
// byte queue (C1) shared between the realtime process callback and the
// USB transport worker.
package ringbuf

import "sync/atomic"

// RingBuffer is a single-producer/single-consumer byte queue. One
// goroutine may call Write/WriteSpace; a different, fixed goroutine may
// call Read/ReadAdvance/ReadSpace. Capacity must be a power of two so the
// cursors can be masked instead of modulo'd, which keeps the producer and
// consumer paths allocation-free and branch-cheap.
//
// The write cursor is only ever advanced by the producer and only ever
// read by the consumer (and vice versa for the read cursor), so plain
// atomic loads/stores give the needed reader-observes-a-full-payload
// guarantee: a consumer that observes write >= some value has
// necessarily observed every byte store that produced it, because the
// cursor store is released after the byte stores it follows.
type RingBuffer struct {
	buf    []byte
	mask   uint64
	write  atomic.Uint64
	read   atomic.Uint64
	drops  atomic.Uint64
}

// NewRingBuffer allocates a ring buffer whose capacity is the next power
// of two >= size.
func NewRingBuffer(size int) *RingBuffer {
	cap := nextPow2(size)
	return &RingBuffer{
		buf:  make([]byte, cap),
		mask: uint64(cap - 1),
	}
}

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Cap returns the buffer's capacity in bytes.
func (r *RingBuffer) Cap() int { return len(r.buf) }

// ReadSpace returns the number of bytes currently available to read.
func (r *RingBuffer) ReadSpace() int {
	w := r.write.Load()
	rd := r.read.Load()
	return int(w - rd)
}

// WriteSpace returns the number of bytes that can be written without
// overrunning the reader.
func (r *RingBuffer) WriteSpace() int {
	return len(r.buf) - r.ReadSpace()
}

// Read copies up to len(dst) bytes into dst, returning the number of
// bytes actually copied (never more than ReadSpace()).
func (r *RingBuffer) Read(dst []byte) int {
	avail := r.ReadSpace()
	n := len(dst)
	if n > avail {
		n = avail
	}
	if n == 0 {
		return 0
	}
	rd := r.read.Load()
	start := int(rd & r.mask)
	end := start + n
	if end <= len(r.buf) {
		copy(dst[:n], r.buf[start:end])
	} else {
		first := len(r.buf) - start
		copy(dst[:first], r.buf[start:])
		copy(dst[first:n], r.buf[:n-first])
	}
	r.read.Store(rd + uint64(n))
	return n
}

// ReadAdvance discards up to n bytes without copying them, e.g. to flush
// the buffer during o2j priming. It never advances past the writer.
func (r *RingBuffer) ReadAdvance(n int) int {
	avail := r.ReadSpace()
	if n > avail {
		n = avail
	}
	r.read.Add(uint64(n))
	return n
}

// Write copies src into the buffer. If it does not fit, the whole write
// is dropped (never a partial write) and the drop counter is incremented;
// the PLL is the defence against sustained overflow, so silently dropping
// here preserves realtime determinism in the writer.
func (r *RingBuffer) Write(src []byte) int {
	if len(src) > r.WriteSpace() {
		r.drops.Add(1)
		return 0
	}
	w := r.write.Load()
	start := int(w & r.mask)
	n := len(src)
	end := start + n
	if end <= len(r.buf) {
		copy(r.buf[start:end], src)
	} else {
		first := len(r.buf) - start
		copy(r.buf[start:], src[:first])
		copy(r.buf[:n-first], src[first:])
	}
	r.write.Store(w + uint64(n))
	return n
}

// Drops returns the number of writes dropped for lack of space.
func (r *RingBuffer) Drops() uint64 { return r.drops.Load() }
