package audio

import "sync"

// evictChunk is how many samples get dropped in one step when a push
// would overflow the ring. Dropping a block at a time skips a coherent
// slice of stale audio instead of shaving single samples off a stream
// that is already behind.
const evictChunk = 1024

// sampleRing is a bounded FIFO of float32 samples shared between the
// capture and render callbacks of the loopback mixer. Pushing past
// capacity evicts the oldest samples, so a stalled reader costs bounded
// memory and bounded staleness, never unbounded growth.
type sampleRing struct {
	mu   sync.Mutex
	buf  []float32
	head int // index of the oldest sample
	size int // samples currently buffered
}

func newSampleRing(capacity int) *sampleRing {
	if capacity < 1 {
		capacity = 1
	}
	return &sampleRing{buf: make([]float32, capacity)}
}

// Push appends samples, evicting the oldest in evictChunk steps while
// the ring would overflow. Returns the number of samples evicted. A
// src larger than the whole ring keeps only its newest window.
func (r *sampleRing) Push(src []float32) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	if len(src) > len(r.buf) {
		evicted = len(src) - len(r.buf)
		src = src[evicted:]
	}

	for r.size+len(src) > len(r.buf) {
		drop := evictChunk
		if drop > r.size {
			drop = r.size
		}
		r.head = (r.head + drop) % len(r.buf)
		r.size -= drop
		evicted += drop
	}

	tail := (r.head + r.size) % len(r.buf)
	n := copy(r.buf[tail:], src)
	if n < len(src) {
		copy(r.buf, src[n:])
	}
	r.size += len(src)
	return evicted
}

// Pop moves the oldest buffered samples into dst and returns how many
// were written. Slots past the returned count are left untouched.
func (r *sampleRing) Pop(dst []float32) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.size
	if n > len(dst) {
		n = len(dst)
	}

	end := r.head + n
	if end <= len(r.buf) {
		copy(dst, r.buf[r.head:end])
	} else {
		k := copy(dst, r.buf[r.head:])
		copy(dst[k:], r.buf[:n-k])
	}
	r.head = (r.head + n) % len(r.buf)
	r.size -= n
	return n
}

// Len returns the number of buffered samples.
func (r *sampleRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Clear drops all buffered samples.
func (r *sampleRing) Clear() {
	r.mu.Lock()
	r.head = 0
	r.size = 0
	r.mu.Unlock()
}
