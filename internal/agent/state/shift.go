package state

import (
	"fmt"
	"time"
)

// ShiftWindow is the employee's scheduled working window, expanded by a
// grace margin on both sides. Outside the window the agent records
// nothing and sends nothing.
type ShiftWindow struct {
	Start time.Duration // offset from local midnight
	End   time.Duration
	Grace time.Duration
}

// ParseShiftWindow builds a window from "HH:MM" start and end strings.
func ParseShiftWindow(start, end string, grace time.Duration) (*ShiftWindow, error) {
	s, err := parseClock(start)
	if err != nil {
		return nil, fmt.Errorf("invalid shift start %q: %w", start, err)
	}
	e, err := parseClock(end)
	if err != nil {
		return nil, fmt.Errorf("invalid shift end %q: %w", end, err)
	}
	return &ShiftWindow{Start: s, End: e, Grace: grace}, nil
}

func parseClock(v string) (time.Duration, error) {
	var h, m int
	if _, err := fmt.Sscanf(v, "%d:%d", &h, &m); err != nil {
		return 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("out of range")
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

// Contains reports whether t falls inside the grace-expanded window,
// using t's own location. Windows whose end precedes their start span
// midnight.
func (w *ShiftWindow) Contains(t time.Time) bool {
	if w == nil {
		// No schedule on file means the agent is always on duty.
		return true
	}

	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := t.Sub(midnight)

	start := w.Start - w.Grace
	end := w.End + w.Grace

	if w.End < w.Start {
		// Overnight shift, e.g. 22:00 to 06:00.
		return offset >= start || offset <= end
	}
	return offset >= start && offset <= end
}
