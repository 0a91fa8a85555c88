package session

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the session package.
var (
	// ErrNotInitialized indicates the service has not been initialized.
	ErrNotInitialized = errors.New("session: service not initialized")

	// ErrMissingTransport indicates no transport was provided.
	ErrMissingTransport = errors.New("session: transport is required")

	// ErrOperationInProgress indicates another lifecycle operation is
	// running; the caller should not retry until it completes.
	ErrOperationInProgress = errors.New("session: operation in progress")

	// ErrSessionManagementDisabled indicates lifecycle operations are
	// administratively disabled.
	ErrSessionManagementDisabled = errors.New("session: session management disabled")

	// ErrUserEndedSession indicates the user explicitly ended the session
	// and auto-restart has not been re-enabled.
	ErrUserEndedSession = errors.New("session: user ended session")

	// ErrDuplicateStart indicates a redundant start request that was
	// suppressed. Callers treat this as a no-op, not a failure.
	ErrDuplicateStart = errors.New("session: duplicate start suppressed")

	// ErrNoActiveSession indicates a stop was requested with no session.
	ErrNoActiveSession = errors.New("session: no active session")

	// ErrSessionActive indicates a start was requested for a new scenario
	// while another session is running. Use ChangeScenario instead.
	ErrSessionActive = errors.New("session: another session is active")

	// ErrNotConnected indicates an operation that requires a live
	// transport connection was called without one.
	ErrNotConnected = errors.New("session: not connected")
)

// CircuitOpenError is returned when the failure circuit breaker is open.
// No transport handshake is attempted; RetryAfter carries the remaining
// cooldown so the UI can offer a retry affordance.
type CircuitOpenError struct {
	RetryAfter time.Duration
	Failures   int
}

// Error implements the error interface.
func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("session: circuit open after %d failures, retry in %s",
		e.Failures, e.RetryAfter.Round(time.Second))
}

// ConnectionError represents a transport or signaling failure.
type ConnectionError struct {
	// Reason describes what failed.
	Reason string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates if another attempt may succeed.
	Retryable bool
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("session: connection error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("session: connection error: %s", e.Reason)
}

// Unwrap returns the underlying cause.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// NewConnectionError creates a new ConnectionError.
func NewConnectionError(reason string, cause error, retryable bool) *ConnectionError {
	return &ConnectionError{Reason: reason, Cause: cause, Retryable: retryable}
}

// PermissionError indicates microphone or audio permission was denied.
// Fatal to the attempt; never retried automatically.
type PermissionError struct {
	Resource string
	Cause    error
}

// Error implements the error interface.
func (e *PermissionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("session: %s permission denied: %v", e.Resource, e.Cause)
	}
	return fmt.Sprintf("session: %s permission denied", e.Resource)
}

// Unwrap returns the underlying cause.
func (e *PermissionError) Unwrap() error {
	return e.Cause
}

// RateLimitError indicates upstream throttling. Retryable after backoff.
type RateLimitError struct {
	RetryAfter time.Duration
	Cause      error
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("session: rate limited, retry in %s", e.RetryAfter)
	}
	return "session: rate limited"
}

// Unwrap returns the underlying cause.
func (e *RateLimitError) Unwrap() error {
	return e.Cause
}

// CleanupError wraps a best-effort teardown failure. It is logged and
// swallowed internally; it never blocks navigation and is never re-thrown
// through the error event.
type CleanupError struct {
	Stage string
	Cause error
}

// Error implements the error interface.
func (e *CleanupError) Error() string {
	return fmt.Sprintf("session: cleanup failed at %s: %v", e.Stage, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *CleanupError) Unwrap() error {
	return e.Cause
}

// Error checking helpers.

// IsCircuitOpen returns true if the error is a breaker rejection.
func IsCircuitOpen(err error) bool {
	var coe *CircuitOpenError
	return errors.As(err, &coe)
}

// IsRetryable returns true if another start attempt may succeed after the
// surfaced error.
func IsRetryable(err error) bool {
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return connErr.Retryable
	}
	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}
	var coe *CircuitOpenError
	if errors.As(err, &coe) {
		return true
	}
	return false
}

// IsPermissionDenied returns true if the error is a permission failure.
func IsPermissionDenied(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}
