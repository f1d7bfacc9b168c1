// Package platform isolates OS-specific probes behind small interfaces
// so the controller stays testable on any platform.
package platform

// Probe answers the OS questions the tick loop asks every cycle.
type Probe interface {
	// IsSystemLocked reports whether the workstation is on the lock
	// screen. Locked means the employee is away regardless of idle time.
	IsSystemLocked() bool
	// SystemIdleSeconds returns the OS's own idle reading when available,
	// or a negative value when the platform cannot say. Used as a
	// cross-check for the agent's input-derived idle measurement.
	SystemIdleSeconds() float64
	// RunningProcessNames lists base names of running processes for the
	// deny-list scan. An error means the scan is skipped this round.
	RunningProcessNames() ([]string, error)
	// Hostname identifies this machine in enrollment.
	Hostname() string
}
