// Package clock provides an injectable wall + monotonic time source.
//
// Idle detection must use the monotonic reading only: wall-clock jumps from
// NTP corrections or sleep/resume would otherwise declare multi-hour breaks
// the instant the machine wakes. Production code uses System(); tests use
// Fake to drive both readings independently.
package clock

import (
	"sync"
	"time"
)

// Clock supplies the two readings the agent needs.
type Clock interface {
	// Now returns wall-clock time, used for timestamps sent to the server.
	Now() time.Time
	// Mono returns a monotonic reading with an arbitrary epoch, used for
	// idle and interval measurement.
	Mono() time.Duration
}

type systemClock struct {
	start time.Time
}

// System returns the real clock. Mono is anchored at construction.
func System() Clock {
	return &systemClock{start: time.Now()}
}

func (c *systemClock) Now() time.Time { return time.Now() }

// Mono relies on the monotonic reading embedded in the start time, so the
// result is unaffected by wall-clock adjustments.
func (c *systemClock) Mono() time.Duration { return time.Since(c.start) }

// Fake is a manually advanced clock for tests. Safe for concurrent use.
type Fake struct {
	mu   sync.Mutex
	now  time.Time
	mono time.Duration
}

// NewFake creates a fake clock starting at the given wall time.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Mono() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mono
}

// Advance moves both readings forward, as real elapsed time would.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	f.mono += d
}

// AdvanceMono moves only the monotonic reading, simulating a suspend gap
// being measured against the idle cap.
func (f *Fake) AdvanceMono(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mono += d
}

// AdvanceWall moves only the wall reading, simulating an NTP step.
func (f *Fake) AdvanceWall(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}
