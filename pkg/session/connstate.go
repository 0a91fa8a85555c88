package session

import "sync"

// connState tracks the raw transport connection phase. It accepts only
// forward-or-reset transitions: New→Connecting and Connecting→Connected
// are the advancing edges, any phase may move to Failed or Disconnected
// (abnormal termination is always legal), and any phase may reset to New.
//
// Retry policy lives entirely in the lifecycle guard; connState only
// reports failures via the onFailure hook.
type connState struct {
	mu        sync.Mutex
	phase     ConnectionPhase
	onChange  func(ConnectionPhase)
	onFailure func()
}

func newConnState() *connState {
	return &connState{phase: PhaseNew}
}

// Phase returns the current connection phase.
func (s *connState) Phase() ConnectionPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Transition applies a phase change if it is legal. Accepted transitions
// fire onChange; a transition to Failed additionally fires onFailure.
// Returns false when the transition is rejected.
func (s *connState) Transition(next ConnectionPhase) bool {
	s.mu.Lock()
	if !legalTransition(s.phase, next) {
		s.mu.Unlock()
		return false
	}
	s.phase = next
	onChange := s.onChange
	onFailure := s.onFailure
	s.mu.Unlock()

	if onChange != nil {
		onChange(next)
	}
	if next == PhaseFailed && onFailure != nil {
		onFailure()
	}
	return true
}

func legalTransition(cur, next ConnectionPhase) bool {
	if next == cur {
		return false
	}
	switch next {
	case PhaseFailed, PhaseDisconnected:
		return true
	case PhaseNew:
		// Reset is always legal.
		return true
	case PhaseConnecting:
		return cur == PhaseNew
	case PhaseConnected:
		return cur == PhaseConnecting
	default:
		return false
	}
}
