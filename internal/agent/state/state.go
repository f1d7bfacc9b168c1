// Package state holds the agent's presence state machine: last-activity
// timestamps, idle detection, and the annotation popup lifecycle.
package state

import (
	"time"

	"github.com/gdshr/attendance-agent/internal/common/clock"
)

// PopupPhase tracks where the annotation popup is in its lifecycle.
type PopupPhase int

const (
	// PopupHidden means no popup is showing and no break needs annotating.
	PopupHidden PopupPhase = iota
	// PopupShowing means the popup is on screen awaiting a reason.
	PopupShowing
	// PopupSubmitted means a reason was submitted and the popup stays up
	// until the employee produces real input again.
	PopupSubmitted
)

// State is the single source of truth for presence. It is owned by the
// controller's tick goroutine and is deliberately lock-free.
type State struct {
	clk clock.Clock

	// Monotonic instants, immune to wall-clock jumps.
	lastActivityMono time.Duration
	// Wall instant of the same activity, for reporting.
	lastActivityWall time.Time

	idleThreshold time.Duration
	idleCap       time.Duration

	popup PopupPhase

	// breakActive is true between a successful (or buffered) break open
	// and its close. Close is never dispatched without it.
	breakActive  bool
	breakStarted time.Time

	offline      bool
	offlineSince time.Time
}

// New creates a State primed as if activity just happened, so the agent
// does not open a break the instant it starts.
func New(clk clock.Clock, idleThreshold, idleCap time.Duration) *State {
	return &State{
		clk:              clk,
		lastActivityMono: clk.Mono(),
		lastActivityWall: clk.Now(),
		idleThreshold:    idleThreshold,
		idleCap:          idleCap,
	}
}

// RecordActivity marks the employee as active right now.
func (s *State) RecordActivity() {
	s.lastActivityMono = s.clk.Mono()
	s.lastActivityWall = s.clk.Now()
}

// IdleSeconds returns seconds since the last activity, measured on the
// monotonic clock and capped so a machine waking from sleep does not
// report hours of idleness.
func (s *State) IdleSeconds() float64 {
	idle := s.clk.Mono() - s.lastActivityMono
	if idle < 0 {
		idle = 0
	}
	if idle > s.idleCap {
		idle = s.idleCap
	}
	return idle.Seconds()
}

// IsIdle reports whether the capped idle time has crossed the threshold.
func (s *State) IsIdle() bool {
	return time.Duration(s.IdleSeconds()*float64(time.Second)) >= s.idleThreshold
}

// LastActivity returns the wall-clock instant of the last input.
func (s *State) LastActivity() time.Time {
	return s.lastActivityWall
}

// CanShowPopup reports whether the annotation popup may be raised: the
// employee is idle past threshold, no popup episode is already
// unresolved, and the agent is online. Offline idle periods become
// auto-detected breaks instead; prompting with no server to annotate
// against would lose the reason.
func (s *State) CanShowPopup() bool {
	return s.IsIdle() && s.popup == PopupHidden && !s.offline
}

// OnPopupShown advances the popup lifecycle after the UI confirms the
// popup is visible.
func (s *State) OnPopupShown() {
	s.popup = PopupShowing
}

// OnPopupSubmitted records that a reason was submitted. The popup stays
// in its submitted phase until real input arrives, but the submission
// itself counts as activity and restarts the idle timer.
func (s *State) OnPopupSubmitted() {
	if s.popup == PopupShowing {
		s.popup = PopupSubmitted
		s.RecordActivity()
	}
}

// OnUserActive is called when genuine input arrives. It resets the popup
// lifecycle and reports whether an open break should now be closed.
func (s *State) OnUserActive() (closeBreak bool) {
	s.popup = PopupHidden
	if s.breakActive {
		s.breakActive = false
		return true
	}
	return false
}

// Popup returns the current popup phase.
func (s *State) Popup() PopupPhase {
	return s.popup
}

// PopupVisible reports whether the popup is on screen in any phase.
func (s *State) PopupVisible() bool {
	return s.popup != PopupHidden
}

// OnBreakOpened marks a break as active from the given start instant.
func (s *State) OnBreakOpened(startedAt time.Time) {
	s.breakActive = true
	s.breakStarted = startedAt
}

// OnBreakClosed clears the active break without touching the popup
// lifecycle. Used when connectivity returns and the auto-detected
// offline break ends.
func (s *State) OnBreakClosed() {
	s.breakActive = false
}

// BreakActive reports whether a break is currently open.
func (s *State) BreakActive() bool {
	return s.breakActive
}

// BreakStarted returns when the active break was opened.
func (s *State) BreakStarted() time.Time {
	return s.breakStarted
}

// MarkOffline records the start of an offline episode. Repeated calls
// keep the original start instant.
func (s *State) MarkOffline() {
	if !s.offline {
		s.offline = true
		s.offlineSince = s.clk.Now()
	}
}

// MarkOnline ends the offline episode and returns its start instant, or
// the zero time if the agent was not offline.
func (s *State) MarkOnline() time.Time {
	if !s.offline {
		return time.Time{}
	}
	s.offline = false
	since := s.offlineSince
	s.offlineSince = time.Time{}
	return since
}

// Offline reports whether the agent currently believes it has no
// connectivity to the HR backend.
func (s *State) Offline() bool {
	return s.offline
}

// OfflineSince returns when the current offline episode began.
func (s *State) OfflineSince() time.Time {
	return s.offlineSince
}
