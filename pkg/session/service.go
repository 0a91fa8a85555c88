package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Service is the conversation session façade. It owns a single live
// session record, composes the connection state machine, transcript
// aggregator, audio coordinator, and lifecycle guard, and is the only
// object the UI layer talks to.
//
// Every mutating operation concludes by computing the full state snapshot
// once and emitting a single stateChanged; observers never see a partial
// view.
type Service struct {
	cfg    *Config
	logger *slog.Logger

	transport   Transport
	emitter     emitter
	guard       *lifecycleGuard
	conn        *connState
	transcripts *transcriptAggregator
	audio       *audioCoordinator

	mu           sync.Mutex
	initialized  bool
	session      *Session
	resyncStop   chan struct{}
	deferredStop *time.Timer
	stopPending  bool
}

// New creates a session service over the given transport and audio
// router. The router may be nil when the platform handles routing itself.
func New(transport Transport, router AudioRouter, opts ...Option) (*Service, error) {
	if transport == nil {
		return nil, ErrMissingTransport
	}

	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		cfg:         cfg,
		logger:      cfg.Logger.With("component", "session.service"),
		transport:   transport,
		guard:       newLifecycleGuard(cfg),
		conn:        newConnState(),
		transcripts: newTranscriptAggregator(cfg.Now),
		audio:       newAudioCoordinator(router, cfg.DeviceSettle, cfg.Logger),
	}

	s.conn.onChange = func(phase ConnectionPhase) {
		s.mu.Lock()
		if s.session != nil {
			s.session.Phase = phase
		}
		s.mu.Unlock()
		s.emitter.connectionStateChanged(phase)
	}
	s.conn.onFailure = func() {
		s.guard.RecordFailure()
	}

	s.transcripts.onDelta = func(speaker Speaker, delta, running string) {
		if speaker == SpeakerTutor {
			s.emitter.aiTranscriptDelta(TranscriptDelta{Delta: delta, Transcript: running})
		}
	}
	s.transcripts.onComplete = func(entry TranscriptEntry) {
		if entry.Speaker == SpeakerUser {
			s.emitter.userTranscriptComplete(entry)
		} else {
			s.emitter.aiTranscriptComplete(entry)
		}
	}

	s.audio.onChange = func(route AudioRoute) {
		s.emitter.audioDeviceChanged(route)
		s.emitStateChanged()
	}

	transport.OnConnectionState(s.handleConnectionPhase)
	transport.OnTranscriptDelta(s.transcripts.AddDelta)
	transport.OnTranscriptFinal(s.handleTranscriptFinal)
	transport.OnSpeechStart(s.handleSpeechStart)
	transport.OnSpeechEnd(s.handleSpeechEnd)
	transport.OnError(s.handleTransportError)

	return s, nil
}

// Initialize prepares the service for use and starts the read-only resync
// ticker. Idempotent.
func (s *Service) Initialize() error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	s.initialized = true
	stop := make(chan struct{})
	s.resyncStop = stop
	s.mu.Unlock()

	go s.resyncLoop(stop)

	s.logger.Info("session service initialized")
	s.emitter.initialized()
	s.emitStateChanged()
	return nil
}

// StartSession admits and starts a new session for the scenario. A
// redundant request (same scenario already active, or an identical
// request inside the debounce window) is a silent no-op. Rejections for
// an in-progress operation or an open circuit breaker return immediately
// without touching the transport.
func (s *Service) StartSession(ctx context.Context, scenarioID, level, userRef string, isUserInitiated bool) error {
	_, err := s.startSession(ctx, scenarioID, level, userRef, isUserInitiated)
	return err
}

func (s *Service) startSession(ctx context.Context, scenarioID, level, userRef string, isUserInitiated bool) (bool, error) {
	if err := s.ensureInitialized(); err != nil {
		return false, err
	}

	if err := s.guard.Admit(scenarioID, isUserInitiated); err != nil {
		if errors.Is(err, ErrDuplicateStart) {
			s.logger.Debug("redundant start suppressed", "scenario", scenarioID)
			return false, nil
		}
		if IsCircuitOpen(err) {
			s.emitter.error(err)
		}
		return false, err
	}

	started := false
	defer func() {
		// The admission lock must release on every exit path.
		s.guard.FinishStart(scenarioID, started)
		s.emitStateChanged()
	}()

	s.logger.Info("starting session",
		"scenario", scenarioID,
		"level", level,
		"user_initiated", isUserInitiated,
	)

	// Fresh transcript state for the new conversation.
	s.transcripts.Reset()
	s.transcripts.ClearHistory()

	s.conn.Transition(PhaseNew)
	s.conn.Transition(PhaseConnecting)

	err := s.transport.Connect(ctx, ConnectOptions{
		ScenarioID: scenarioID,
		Level:      level,
		UserRef:    userRef,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// The caller abandoned the start; not an upstream failure.
			s.conn.Transition(PhaseNew)
			return false, err
		}
		s.conn.Transition(PhaseFailed)
		s.conn.Transition(PhaseNew)
		err = asSessionError(err)
		s.logger.Warn("session start failed", "scenario", scenarioID, "error", err)
		s.emitter.error(err)
		return false, err
	}

	s.conn.Transition(PhaseConnected)
	s.guard.RecordSuccess()

	sess := &Session{
		ID:         uuid.NewString(),
		ScenarioID: scenarioID,
		Level:      level,
		UserRef:    userRef,
		StartedAt:  s.cfg.Now(),
		Phase:      PhaseConnected,
	}
	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()

	started = true
	s.emitter.sessionStarted(ScenarioInfo{ScenarioID: scenarioID, Level: level})
	return true, nil
}

// ChangeScenario switches the active session to a new scenario. A
// request for the scenario already running is a silent no-op; the live
// session is only torn down once the new scenario has cleared
// admission. User-intent flags are not touched, so an auto-triggered
// change after StopSessionByUser is still rejected.
func (s *Service) ChangeScenario(ctx context.Context, scenarioID, level, userRef string) error {
	if err := s.ensureInitialized(); err != nil {
		return err
	}

	s.mu.Lock()
	active := s.session != nil
	s.mu.Unlock()

	if active {
		if err := s.guard.AdmitChange(scenarioID); err != nil {
			if errors.Is(err, ErrDuplicateStart) {
				s.logger.Debug("redundant scenario change suppressed", "scenario", scenarioID)
				return nil
			}
			if IsCircuitOpen(err) {
				s.emitter.error(err)
			}
			return err
		}
		if err := s.guard.BeginStop(); err != nil {
			return err
		}
		s.finalizeStop()
	}

	started, err := s.startSession(ctx, scenarioID, level, userRef, false)
	if err != nil {
		return err
	}
	if started {
		s.emitter.scenarioChanged(ScenarioInfo{ScenarioID: scenarioID, Level: level})
	}
	return nil
}

// StopSession tears down the current session without recording user
// intent, permitting a later auto-resume (e.g. app backgrounding).
func (s *Service) StopSession() error {
	return s.stop(false)
}

// StopSessionByUser tears down the current session and records that the
// user explicitly ended it; no auto-restart occurs until
// ResetSessionControlFlags.
func (s *Service) StopSessionByUser() error {
	return s.stop(true)
}

func (s *Service) stop(byUser bool) error {
	if err := s.ensureInitialized(); err != nil {
		return err
	}

	if byUser {
		s.guard.MarkUserEnded()
	}

	s.mu.Lock()
	active := s.session != nil
	s.mu.Unlock()
	if !active {
		if byUser {
			s.emitStateChanged()
		}
		return nil
	}

	if err := s.guard.BeginStop(); err != nil {
		return err
	}

	if s.guard.TutorSpeaking() {
		// Graceful path: the tutor is mid-utterance. Transient state
		// clears now; destructive teardown waits for the grace delay or
		// for speech to end, whichever comes first.
		s.transcripts.Reset()
		s.mu.Lock()
		s.stopPending = true
		s.deferredStop = time.AfterFunc(s.cfg.TeardownGrace, func() {
			if s.claimFinalize() {
				s.finalizeStop()
			}
		})
		s.mu.Unlock()
		s.logger.Info("teardown deferred while tutor speaking",
			"grace", s.cfg.TeardownGrace,
			"by_user", byUser,
		)
		s.emitStateChanged()
		return nil
	}

	s.finalizeStop()
	return nil
}

// claimFinalize consumes a pending deferred stop. Returns true exactly
// once per deferral, whether the grace timer or a speech-end event wins.
func (s *Service) claimFinalize() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopPending {
		return false
	}
	s.stopPending = false
	if s.deferredStop != nil {
		s.deferredStop.Stop()
		s.deferredStop = nil
	}
	return true
}

// finalizeStop performs destructive teardown. Cleanup failures are logged
// and swallowed; they never propagate to the caller or the error event.
func (s *Service) finalizeStop() {
	s.guard.BeginCleanup()

	if err := s.transport.Close(); err != nil {
		cerr := &CleanupError{Stage: "transport close", Cause: err}
		s.logger.Warn("best-effort teardown failure", "error", cerr)
	}

	s.transcripts.Reset()
	s.conn.Transition(PhaseDisconnected)
	s.conn.Transition(PhaseNew)

	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()

	s.guard.SetTutorSpeaking(false)
	s.guard.FinishStop()

	s.logger.Info("session stopped")
	s.emitter.sessionStopped()
	s.emitStateChanged()
}

// ResetSessionControlFlags clears a prior "end session" intent,
// re-enabling auto-restart.
func (s *Service) ResetSessionControlFlags() {
	s.guard.ResetControlFlags()
	s.emitStateChanged()
}

// SetSessionManagementDisabled administratively blocks or unblocks
// lifecycle operations.
func (s *Service) SetSessionManagementDisabled(disabled bool) {
	s.guard.SetManagementDisabled(disabled)
	s.emitStateChanged()
}

// DeviceChanged feeds a hardware audio device notification into the
// coordinator.
func (s *Service) DeviceChanged(device AudioDevice, available bool) {
	s.audio.DeviceChanged(device, available)
}

// State returns a snapshot of all session state. See Snapshot for its
// consistency contract under concurrent mutation.
func (s *Service) State() Snapshot {
	return s.snapshot()
}

// Destroy releases all resources and fully resets the service. A
// subsequent Initialize starts from a clean slate. Idempotent.
func (s *Service) Destroy() {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return
	}
	s.initialized = false
	if s.resyncStop != nil {
		close(s.resyncStop)
		s.resyncStop = nil
	}
	if s.deferredStop != nil {
		s.deferredStop.Stop()
		s.deferredStop = nil
	}
	s.stopPending = false
	s.session = nil
	s.mu.Unlock()

	if s.transport.IsConnected() {
		if err := s.transport.Close(); err != nil {
			cerr := &CleanupError{Stage: "transport close", Cause: err}
			s.logger.Warn("best-effort teardown failure", "error", cerr)
		}
	}

	s.transcripts.Reset()
	s.transcripts.ClearHistory()
	s.conn.Transition(PhaseNew)
	s.guard.ResetAll()

	clearShared(s)
	s.logger.Info("session service destroyed")
}

// Subscribe registers all callbacks at once. Individual OnX setters are
// available for consumers that only need a few events.
func (s *Service) Subscribe(cb Callbacks) {
	s.emitter.set(func(dst *Callbacks) {
		*dst = cb
	})
}

// OnInitialized sets the initialized callback.
func (s *Service) OnInitialized(fn func()) {
	s.emitter.set(func(cb *Callbacks) { cb.OnInitialized = fn })
}

// OnStateChanged sets the snapshot callback.
func (s *Service) OnStateChanged(fn func(Snapshot)) {
	s.emitter.set(func(cb *Callbacks) { cb.OnStateChanged = fn })
}

// OnConnectionStateChanged sets the connection phase callback.
func (s *Service) OnConnectionStateChanged(fn func(ConnectionPhase)) {
	s.emitter.set(func(cb *Callbacks) { cb.OnConnectionStateChanged = fn })
}

// OnSessionStarted sets the session started callback.
func (s *Service) OnSessionStarted(fn func(ScenarioInfo)) {
	s.emitter.set(func(cb *Callbacks) { cb.OnSessionStarted = fn })
}

// OnSessionStopped sets the session stopped callback.
func (s *Service) OnSessionStopped(fn func()) {
	s.emitter.set(func(cb *Callbacks) { cb.OnSessionStopped = fn })
}

// OnScenarioChanged sets the scenario changed callback.
func (s *Service) OnScenarioChanged(fn func(ScenarioInfo)) {
	s.emitter.set(func(cb *Callbacks) { cb.OnScenarioChanged = fn })
}

// OnAISpeechStarted sets the tutor speech start callback.
func (s *Service) OnAISpeechStarted(fn func()) {
	s.emitter.set(func(cb *Callbacks) { cb.OnAISpeechStarted = fn })
}

// OnAISpeechEnded sets the tutor speech end callback.
func (s *Service) OnAISpeechEnded(fn func()) {
	s.emitter.set(func(cb *Callbacks) { cb.OnAISpeechEnded = fn })
}

// OnUserTranscriptComplete sets the user transcript callback.
func (s *Service) OnUserTranscriptComplete(fn func(TranscriptEntry)) {
	s.emitter.set(func(cb *Callbacks) { cb.OnUserTranscriptComplete = fn })
}

// OnAITranscriptDelta sets the tutor transcript delta callback.
func (s *Service) OnAITranscriptDelta(fn func(TranscriptDelta)) {
	s.emitter.set(func(cb *Callbacks) { cb.OnAITranscriptDelta = fn })
}

// OnAITranscriptComplete sets the tutor transcript callback.
func (s *Service) OnAITranscriptComplete(fn func(TranscriptEntry)) {
	s.emitter.set(func(cb *Callbacks) { cb.OnAITranscriptComplete = fn })
}

// OnAudioDeviceChanged sets the audio route callback.
func (s *Service) OnAudioDeviceChanged(fn func(AudioRoute)) {
	s.emitter.set(func(cb *Callbacks) { cb.OnAudioDeviceChanged = fn })
}

// OnError sets the error callback.
func (s *Service) OnError(fn func(error)) {
	s.emitter.set(func(cb *Callbacks) { cb.OnError = fn })
}

// Internal handlers for transport callbacks.

func (s *Service) handleConnectionPhase(phase ConnectionPhase) {
	if s.conn.Transition(phase) {
		s.emitStateChanged()
	}
}

func (s *Service) handleTranscriptFinal(speaker Speaker, text string) {
	if _, ok := s.transcripts.Finalize(speaker, text); ok {
		s.emitStateChanged()
	}
}

func (s *Service) handleSpeechStart() {
	s.guard.SetTutorSpeaking(true)
	s.emitter.aiSpeechStarted()
	s.emitStateChanged()
}

func (s *Service) handleSpeechEnd() {
	s.guard.SetTutorSpeaking(false)
	s.emitter.aiSpeechEnded()
	if s.claimFinalize() {
		// A deferred teardown was waiting for this utterance to finish.
		s.finalizeStop()
		return
	}
	s.emitStateChanged()
}

func (s *Service) handleTransportError(err error) {
	s.logger.Warn("transport error", "error", err)
	s.emitter.error(asSessionError(err))
}

func (s *Service) ensureInitialized() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	return nil
}

// snapshot samples each component under its own lock. Mutating
// operations emit exactly one snapshot after all components settle.
func (s *Service) snapshot() Snapshot {
	s.mu.Lock()
	var sess *Session
	if s.session != nil {
		cp := *s.session
		sess = &cp
	}
	s.mu.Unlock()

	return Snapshot{
		Session:       sess,
		Connection:    s.conn.Phase(),
		Operation:     s.guard.Op(),
		Flags:         s.guard.Flags(),
		Failures:      s.guard.Failures(),
		History:       s.transcripts.History(),
		Route:         s.audio.Route(),
		TutorSpeaking: s.guard.TutorSpeaking(),
	}
}

func (s *Service) emitStateChanged() {
	s.emitter.stateChanged(s.snapshot())
}

// resyncLoop periodically pushes the current snapshot so observers can
// reconcile with the transport. Strictly read-only: it never invokes
// start or stop.
func (s *Service) resyncLoop(stop chan struct{}) {
	if s.cfg.ResyncInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.ResyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.emitter.stateChanged(s.snapshot())
		}
	}
}

// asSessionError maps unclassified transport errors onto the package
// taxonomy. Errors already typed pass through unchanged.
func asSessionError(err error) error {
	var connErr *ConnectionError
	var permErr *PermissionError
	var rateErr *RateLimitError
	var coe *CircuitOpenError
	if errors.As(err, &connErr) || errors.As(err, &permErr) ||
		errors.As(err, &rateErr) || errors.As(err, &coe) {
		return err
	}
	return NewConnectionError("transport failure", err, true)
}

// Process-wide singleton, created lazily on first use.

var (
	sharedMu sync.Mutex
	shared   *Service
)

// Shared returns the process-wide service, creating and initializing it
// on first use. Destroying the returned service clears the singleton so a
// later call starts from a clean slate.
func Shared(transport Transport, router AudioRouter, opts ...Option) (*Service, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared != nil {
		return shared, nil
	}
	svc, err := New(transport, router, opts...)
	if err != nil {
		return nil, err
	}
	if err := svc.Initialize(); err != nil {
		return nil, err
	}
	shared = svc
	return svc, nil
}

func clearShared(s *Service) {
	sharedMu.Lock()
	if shared == s {
		shared = nil
	}
	sharedMu.Unlock()
}
