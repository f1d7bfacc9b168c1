// Package tracker implements the activity-classification and
// anti-automation scoring engine.
//
// The tracker receives raw input events and computes a 0-100 score for how
// human-like the recent activity looks. It records ONLY statistical
// patterns: timestamps, cursor coordinates, and counts. No key content is
// ever captured.
//
// All methods must be called from the controller's tick goroutine; the
// tracker holds no locks by design.
package tracker

import "time"

// Kind discriminates the input event variants.
type Kind int

const (
	// KindMove is a cursor move with coordinates.
	KindMove Kind = iota
	// KindClick is a button press with coordinates.
	KindClick
	// KindScroll is a wheel event; coordinates are not recorded.
	KindScroll
	// KindKey is a key press; the key itself is never recorded.
	KindKey
)

// Event is a single input observation. Ephemeral: produced by a capture
// source, queued, consumed once, never persisted.
type Event struct {
	Kind Kind
	X, Y int
	At   time.Time
}

type point struct {
	x, y int
}

type moveSample struct {
	x, y int
	at   time.Time
}

// Tracker owns the bounded pattern buffers and the per-period counters.
type Tracker struct {
	clickTimes     *ring[time.Time]
	clickPositions *ring[point]
	movePositions  *ring[moveSample]

	// Per-period counters, reset to zero by every Score call.
	keyCount    int
	mouseCount  int
	scrollCount int

	moveThrottle time.Duration
	lastMoveAt   time.Time
	lastScore    int
}

// New creates a tracker with the given pattern buffer capacity and move
// throttle window.
func New(bufferSize int, moveThrottle time.Duration) *Tracker {
	return &Tracker{
		clickTimes:     newRing[time.Time](bufferSize),
		clickPositions: newRing[point](bufferSize),
		movePositions:  newRing[moveSample](bufferSize),
		moveThrottle:   moveThrottle,
		lastScore:      100,
	}
}

// Record folds one event into the buffers and counters. It never blocks
// and never fails.
//
// Move events are throttled: at most one is recorded per throttle window,
// measured in the event's own timestamp, to bound CPU and memory on
// machines that emit very high-frequency move events.
func (t *Tracker) Record(ev Event) {
	switch ev.Kind {
	case KindMove:
		if !t.lastMoveAt.IsZero() && ev.At.Sub(t.lastMoveAt) < t.moveThrottle {
			return
		}
		t.lastMoveAt = ev.At
		t.mouseCount++
		t.movePositions.push(moveSample{x: ev.X, y: ev.Y, at: ev.At})
	case KindClick:
		t.mouseCount++
		t.clickTimes.push(ev.At)
		t.clickPositions.push(point{x: ev.X, y: ev.Y})
	case KindScroll:
		t.scrollCount++
	case KindKey:
		t.keyCount++
	}
}

// Score analyzes the recent activity patterns and returns 0-100:
//
//	70-100  genuine human input
//	30-69   suspicious, flagged for review
//	0-29    likely automated
//
// The three scalar counters are reset as a side effect; the pattern
// buffers are kept so interval and position analysis spans scoring
// periods. With no events this period and fewer than 3 buffered clicks
// there is nothing to judge, and the benefit of the doubt is 100.
func (t *Tracker) Score() int {
	clickTimes := t.clickTimes.values()
	clickPositions := t.clickPositions.values()
	movePositions := t.movePositions.values()
	keyCount := t.keyCount
	mouseCount := t.mouseCount
	scrollCount := t.scrollCount

	t.keyCount = 0
	t.mouseCount = 0
	t.scrollCount = 0

	totalEvents := keyCount + mouseCount + scrollCount

	if totalEvents == 0 && len(clickTimes) < 3 {
		t.lastScore = 100
		return 100
	}

	total := scoreDensity(totalEvents) +
		scoreClickIntervals(clickTimes) +
		scorePositionDiversity(clickPositions) +
		scoreInputMix(keyCount, scrollCount, totalEvents) +
		scoreMovementNaturalness(movePositions)

	t.lastScore = total
	return total
}

// LastScore returns the most recent score, for diagnostics.
func (t *Tracker) LastScore() int {
	return t.lastScore
}
