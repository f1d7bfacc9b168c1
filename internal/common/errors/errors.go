// Package errors provides the error taxonomy for the attendance agent.
//
// The classification drives retry behavior: transient failures are retried
// and then buffered for replay, auth rejections are never retried, and
// corrupt local state is treated as absence rather than a fatal condition.
package errors

import (
	"errors"
	"fmt"
)

// Error codes as constants
const (
	ErrCodeTransient    = "TRANSIENT"     // timeout, refused connection, 5xx
	ErrCodeAuthRejected = "AUTH_REJECTED" // 401-equivalent, device revoked
	ErrCodeCorruptState = "CORRUPT_STATE" // unreadable local file or entry
	ErrCodeInternal     = "INTERNAL"      // everything else
)

// AgentError represents an agent error with its retry classification.
type AgentError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *AgentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for use with errors.Is and errors.As.
func (e *AgentError) Unwrap() error {
	return e.Err
}

// Transient creates a retryable error wrapping an underlying cause.
func Transient(message string, err error) *AgentError {
	return &AgentError{Code: ErrCodeTransient, Message: message, Err: err}
}

// AuthRejected creates a hard-rejection error. Never retried; the device
// needs re-enrollment.
func AuthRejected(message string) *AgentError {
	return &AgentError{Code: ErrCodeAuthRejected, Message: message}
}

// CorruptState creates an error for unreadable persisted state.
func CorruptState(message string, err error) *AgentError {
	return &AgentError{Code: ErrCodeCorruptState, Message: message, Err: err}
}

// Internal creates an unclassified error with a wrapped underlying cause.
func Internal(message string, err error) *AgentError {
	return &AgentError{Code: ErrCodeInternal, Message: message, Err: err}
}

// IsTransient checks if the error should be retried and then buffered.
func IsTransient(err error) bool {
	var agentErr *AgentError
	if errors.As(err, &agentErr) {
		return agentErr.Code == ErrCodeTransient
	}
	return false
}

// IsAuthRejected checks if the error is a hard auth rejection.
func IsAuthRejected(err error) bool {
	var agentErr *AgentError
	if errors.As(err, &agentErr) {
		return agentErr.Code == ErrCodeAuthRejected
	}
	return false
}

// IsCorruptState checks if the error marks unreadable persisted state.
func IsCorruptState(err error) bool {
	var agentErr *AgentError
	if errors.As(err, &agentErr) {
		return agentErr.Code == ErrCodeCorruptState
	}
	return false
}
