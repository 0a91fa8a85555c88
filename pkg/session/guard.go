package session

import (
	"log/slog"
	"sync"
	"time"
)

// lifecycleGuard is the hazard-control center for session lifecycle. It
// admits or rejects start requests, suppresses redundant triggers, tracks
// user intent, and implements the circuit breaker over repeated
// connection failures.
//
// Exactly one lifecycle operation (start, stop, cleanup) runs at a time;
// the OperationPhase acts as the admission lock. Concurrent requests are
// rejected immediately, never queued. Every Begin* must be paired with
// its Finish* on all exit paths or no further operation is admitted.
type lifecycleGuard struct {
	mu     sync.Mutex
	now    func() time.Time
	logger *slog.Logger

	debounceWindow   time.Duration
	failureThreshold int
	failureWindow    time.Duration
	cooldown         time.Duration

	op       OperationPhase
	flags    ControlFlags
	failures FailureWindow

	lastRequestedScenario string
	lastRequestAt         time.Time
	activeScenario        string
	tutorSpeaking         bool
}

func newLifecycleGuard(cfg *Config) *lifecycleGuard {
	return &lifecycleGuard{
		now:              cfg.Now,
		logger:           cfg.Logger,
		debounceWindow:   cfg.DebounceWindow,
		failureThreshold: cfg.FailureThreshold,
		failureWindow:    cfg.FailureWindow,
		cooldown:         cfg.BreakerCooldown,
		flags:            ControlFlags{AllowAutoRestart: true},
	}
}

// Admit decides whether a start attempt for scenarioID may proceed. On
// success it records the request and moves the guard to OpStarting; the
// caller must call FinishStart on every exit path.
//
// User-initiated requests override the user-intent flags (the user is
// explicitly asking to begin) but never the circuit breaker or an
// operation already in progress. ErrDuplicateStart marks a redundant
// trigger the caller should swallow silently.
func (g *lifecycleGuard) Admit(scenarioID string, userInitiated bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	if g.op != OpIdle {
		return ErrOperationInProgress
	}
	if g.flags.SessionManagementDisabled {
		return ErrSessionManagementDisabled
	}
	if until := g.failures.CircuitOpenUntil; !until.IsZero() && now.Before(until) {
		return &CircuitOpenError{
			RetryAfter: until.Sub(now),
			Failures:   g.failures.ConsecutiveFailures,
		}
	}
	if !userInitiated && g.flags.UserEndedSession && !g.flags.AllowAutoRestart {
		return ErrUserEndedSession
	}
	if g.activeScenario != "" {
		if g.activeScenario == scenarioID {
			return ErrDuplicateStart
		}
		return ErrSessionActive
	}
	if g.lastRequestedScenario == scenarioID && now.Sub(g.lastRequestAt) < g.debounceWindow {
		return ErrDuplicateStart
	}

	g.lastRequestedScenario = scenarioID
	g.lastRequestAt = now
	g.op = OpStarting
	return nil
}

// AdmitChange validates a scenario switch before the current session is
// torn down. Gating matches Admit except that an active session is
// expected rather than rejected: a change to the scenario already
// active, or one inside the debounce window, returns ErrDuplicateStart
// so the caller can no-op with the session intact. AdmitChange does not
// claim the operation lock; the caller still runs the stop and start
// admissions.
func (g *lifecycleGuard) AdmitChange(scenarioID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	if g.op != OpIdle {
		return ErrOperationInProgress
	}
	if g.flags.SessionManagementDisabled {
		return ErrSessionManagementDisabled
	}
	if until := g.failures.CircuitOpenUntil; !until.IsZero() && now.Before(until) {
		return &CircuitOpenError{
			RetryAfter: until.Sub(now),
			Failures:   g.failures.ConsecutiveFailures,
		}
	}
	if g.flags.UserEndedSession && !g.flags.AllowAutoRestart {
		return ErrUserEndedSession
	}
	if g.activeScenario == scenarioID {
		return ErrDuplicateStart
	}
	if g.lastRequestedScenario == scenarioID && now.Sub(g.lastRequestAt) < g.debounceWindow {
		return ErrDuplicateStart
	}
	return nil
}

// FinishStart releases the start admission. On success the scenario is
// recorded as active.
func (g *lifecycleGuard) FinishStart(scenarioID string, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.op = OpIdle
	if ok {
		g.activeScenario = scenarioID
	}
}

// BeginStop admits a stop operation.
func (g *lifecycleGuard) BeginStop() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.op != OpIdle {
		return ErrOperationInProgress
	}
	g.op = OpStopping
	return nil
}

// BeginCleanup marks destructive teardown in progress. Legal only while
// stopping.
func (g *lifecycleGuard) BeginCleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.op == OpStopping {
		g.op = OpCleaningUp
	}
}

// FinishStop releases the stop/cleanup admission and clears the active
// scenario.
func (g *lifecycleGuard) FinishStop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.op = OpIdle
	g.activeScenario = ""
}

// RecordFailure counts a connection failure reported by the state
// machine. Failures separated by more than the rolling window restart the
// count. Reaching the threshold opens the breaker; returns true when the
// breaker opens on this failure.
func (g *lifecycleGuard) RecordFailure() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if !g.failures.LastFailureAt.IsZero() && now.Sub(g.failures.LastFailureAt) > g.failureWindow {
		g.failures.ConsecutiveFailures = 0
	}
	g.failures.ConsecutiveFailures++
	g.failures.LastFailureAt = now

	if g.failures.ConsecutiveFailures >= g.failureThreshold {
		opened := g.failures.CircuitOpenUntil.IsZero() || !now.Before(g.failures.CircuitOpenUntil)
		g.failures.CircuitOpenUntil = now.Add(g.cooldown)
		if opened {
			g.logger.Warn("circuit breaker opened",
				"failures", g.failures.ConsecutiveFailures,
				"cooldown", g.cooldown,
			)
		}
		return opened
	}
	return false
}

// RecordSuccess resets the failure window on a successful connection.
func (g *lifecycleGuard) RecordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures = FailureWindow{}
}

// MarkUserEnded records that the user explicitly ended the session. No
// auto-restart occurs until ResetControlFlags.
func (g *lifecycleGuard) MarkUserEnded() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.flags.UserEndedSession = true
	g.flags.AllowAutoRestart = false
}

// ResetControlFlags clears the user-intent flags, re-enabling
// auto-restart. This is the only way to cancel a prior end-session
// intent.
func (g *lifecycleGuard) ResetControlFlags() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.flags.UserEndedSession = false
	g.flags.AllowAutoRestart = true
}

// SetManagementDisabled toggles administrative lockout of lifecycle
// operations.
func (g *lifecycleGuard) SetManagementDisabled(disabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.flags.SessionManagementDisabled = disabled
}

// SetTutorSpeaking tracks the speech-start/speech-end events that decide
// graceful versus immediate teardown.
func (g *lifecycleGuard) SetTutorSpeaking(speaking bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tutorSpeaking = speaking
}

// TutorSpeaking reports whether the tutor is currently speaking.
func (g *lifecycleGuard) TutorSpeaking() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tutorSpeaking
}

// Op returns the current operation phase.
func (g *lifecycleGuard) Op() OperationPhase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.op
}

// Flags returns a copy of the control flags.
func (g *lifecycleGuard) Flags() ControlFlags {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.flags
}

// Failures returns a copy of the failure window.
func (g *lifecycleGuard) Failures() FailureWindow {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failures
}

// ResetAll restores the guard to its initial state. Used by Destroy.
func (g *lifecycleGuard) ResetAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.op = OpIdle
	g.flags = ControlFlags{AllowAutoRestart: true}
	g.failures = FailureWindow{}
	g.lastRequestedScenario = ""
	g.lastRequestAt = time.Time{}
	g.activeScenario = ""
	g.tutorSpeaking = false
}
