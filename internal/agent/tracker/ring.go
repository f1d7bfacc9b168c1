package tracker

// ring is a fixed-capacity insertion-order buffer that evicts the oldest
// entry on overflow. It backs the pattern buffers: the score only ever
// looks at the most recent N samples, so memory stays bounded no matter
// how long the agent runs.
type ring[T any] struct {
	buf  []T
	head int // index of the oldest element
	size int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{buf: make([]T, capacity)}
}

// push appends v, evicting the oldest element if the ring is full.
func (r *ring[T]) push(v T) {
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = v
		r.size++
		return
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
}

func (r *ring[T]) len() int { return r.size }

// values returns the elements oldest-first.
func (r *ring[T]) values() []T {
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}
