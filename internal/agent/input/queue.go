// Package input bridges OS capture callbacks to the controller's tick
// loop: a bounded queue plus a watchdog over the capture sources.
package input

import (
	"sync"

	"github.com/gdshr/attendance-agent/internal/agent/tracker"
)

// Queue is a bounded, thread-safe event queue. Capture callbacks push
// from OS threads; the controller drains on its own schedule. When full,
// new events are dropped: losing a sample is harmless, blocking an OS
// input hook is not.
type Queue struct {
	mu      sync.Mutex
	buf     []tracker.Event
	max     int
	dropped uint64
}

// NewQueue creates a queue that holds at most max events.
func NewQueue(max int) *Queue {
	return &Queue{buf: make([]tracker.Event, 0, max), max: max}
}

// Push enqueues an event. It never blocks; over capacity the event is
// counted as dropped and discarded.
func (q *Queue) Push(ev tracker.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) >= q.max {
		q.dropped++
		return
	}
	q.buf = append(q.buf, ev)
}

// Drain removes and returns up to limit events in arrival order. A
// limit <= 0 drains everything.
func (q *Queue) Drain(limit int) []tracker.Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.buf)
	if n == 0 {
		return nil
	}
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]tracker.Event, n)
	copy(out, q.buf[:n])
	q.buf = append(q.buf[:0], q.buf[n:]...)
	return out
}

// DiscardAll throws away everything queued and reports how many events
// were discarded. Used while the annotation popup is up, when input is
// only a signal and its patterns must not be scored.
func (q *Queue) DiscardAll() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.buf)
	q.buf = q.buf[:0]
	return n
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Dropped returns the count of events discarded due to a full queue.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
