// Package v1 contains the public wire types shared by the agent core,
// the local UI bridge, and external consumers of the status API.
package v1

import "time"

// AgentVersion is reported to the server at enrollment and in diagnostics.
const AgentVersion = "2.0.0"

// ActivityState is the coarse classification reported in heartbeats.
type ActivityState string

const (
	// StateActive means recent genuine input was observed.
	StateActive ActivityState = "ACTIVE"
	// StateIdle means no input for the idle threshold, or the system is locked.
	StateIdle ActivityState = "IDLE"
	// StateSuspicious overrides ACTIVE when a known automation tool is running.
	StateSuspicious ActivityState = "SUSPICIOUS"
)

// Activity score bands. The tracker produces the number; interpretation
// belongs to callers.
const (
	ScoreGenuineMin    = 70 // >= 70: genuine human input
	ScoreSuspiciousMin = 30 // 30-69: flagged for review; < 30: likely automated
)

// BreakCategories are the selectable break reasons, in display order.
var BreakCategories = []string{
	"Official",
	"Personal Break",
	"Namaz",
	"Others",
}

// BreakReasonPending is the placeholder reason a break record carries
// between open and annotate.
const BreakReasonPending = "Pending"

// AgentStatus is the read-only snapshot exposed by the UI bridge.
type AgentStatus struct {
	State         ActivityState `json:"state"`
	Score         int           `json:"score"`
	IdleSeconds   float64       `json:"idle_seconds"`
	Online        bool          `json:"online"`
	SystemLocked  bool          `json:"system_locked"`
	PopupVisible  bool          `json:"popup_visible"`
	BreakActive   bool          `json:"break_active"`
	BreakStartAt  *time.Time    `json:"break_start_at,omitempty"`
	SuspiciousBin string        `json:"suspicious_binary,omitempty"`
	Version       string        `json:"version"`
}

// BreakSubmission is the body of POST /api/v1/break/submit.
type BreakSubmission struct {
	Category string `json:"category" binding:"required"`
	Reason   string `json:"reason" binding:"required"`
}

// BreakSubmissionResult tells the UI what happened to the annotate call.
type BreakSubmissionResult struct {
	Saved    bool   `json:"saved"`    // reason reached the server
	Buffered bool   `json:"buffered"` // reason stored locally for replay
	Message  string `json:"message,omitempty"`
}

// PopupCommand is pushed to UI clients over the websocket channel.
type PopupCommand struct {
	Action     string    `json:"action"` // "show" or "hide"
	Categories []string  `json:"categories,omitempty"`
	IssuedAt   time.Time `json:"issued_at"`
}

// Notification is a one-way message pushed to UI clients (for example the
// suspicious-activity warning).
type Notification struct {
	Kind     string    `json:"kind"`
	Message  string    `json:"message"`
	IssuedAt time.Time `json:"issued_at"`
}
