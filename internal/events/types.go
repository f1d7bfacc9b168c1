// Package events defines the telemetry event subjects published by the
// agent core. Subjects follow NATS naming so the same constants work on
// both the in-memory bus and a real NATS deployment.
package events

const (
	// StateChanged fires when the coarse activity state flips.
	StateChanged = "agent.state.changed"
	// HeartbeatSent fires after each heartbeat attempt, success or failure.
	HeartbeatSent = "agent.heartbeat.sent"
	// BreakOpened fires when a break episode is opened server-side.
	BreakOpened = "agent.break.opened"
	// BreakAnnotated fires when the employee's reason reaches the server.
	BreakAnnotated = "agent.break.annotated"
	// BreakClosed fires when a break episode is closed.
	BreakClosed = "agent.break.closed"
	// SuspiciousDetected fires when a deny-listed process appears.
	SuspiciousDetected = "agent.suspicious.detected"
	// Connectivity fires on offline/online transitions.
	Connectivity = "agent.connectivity"

	// AllAgentEvents is the wildcard subject matching everything above.
	AllAgentEvents = "agent.>"
)
