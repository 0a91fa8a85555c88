package session

import "time"

// ConnectionPhase represents the raw transport connection lifecycle.
type ConnectionPhase int

const (
	// PhaseNew indicates no connection has been attempted yet.
	PhaseNew ConnectionPhase = iota
	// PhaseConnecting indicates a handshake is in progress.
	PhaseConnecting
	// PhaseConnected indicates an active connection.
	PhaseConnected
	// PhaseDisconnected indicates the connection ended.
	PhaseDisconnected
	// PhaseFailed indicates the connection attempt or link failed.
	PhaseFailed
)

// String returns a human-readable connection phase.
func (p ConnectionPhase) String() string {
	switch p {
	case PhaseNew:
		return "new"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseDisconnected:
		return "disconnected"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// OperationPhase identifies which lifecycle operation, if any, is in
// progress. Only one operation runs at a time; start requests arriving
// while an operation is in progress are rejected, never queued.
type OperationPhase int

const (
	// OpIdle means no lifecycle operation is running.
	OpIdle OperationPhase = iota
	// OpStarting means a start is being admitted and connected.
	OpStarting
	// OpStopping means a stop is in progress (possibly deferred).
	OpStopping
	// OpCleaningUp means destructive teardown is running.
	OpCleaningUp
)

// String returns a human-readable operation phase.
func (p OperationPhase) String() string {
	switch p {
	case OpIdle:
		return "idle"
	case OpStarting:
		return "starting"
	case OpStopping:
		return "stopping"
	case OpCleaningUp:
		return "cleaning_up"
	default:
		return "unknown"
	}
}

// Speaker identifies who produced a transcript fragment.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerTutor Speaker = "tutor"
)

// AudioDevice identifies an audio output device class.
type AudioDevice string

const (
	DeviceSpeaker   AudioDevice = "speaker"
	DeviceBluetooth AudioDevice = "bluetooth"
	DeviceHeadset   AudioDevice = "headset"
)

// Session is one live voice-conversation instance tied to a scenario and
// proficiency level. At most one Session exists at a time.
type Session struct {
	ID         string
	ScenarioID string
	Level      string
	UserRef    string
	StartedAt  time.Time
	Phase      ConnectionPhase
}

// TranscriptEntry is one completed (or in-flight) utterance in the
// conversation history. Entries are append-only and chronological.
type TranscriptEntry struct {
	Speaker   Speaker
	Text      string
	IsFinal   bool
	Timestamp time.Time
}

// AudioRoute describes the current audio output route.
type AudioRoute struct {
	Device    AudioDevice
	Available bool
}

// ControlFlags tracks user intent and administrative state for the
// lifecycle guard. UserEndedSession set without a subsequent
// ResetSessionControlFlags means no auto-restart may occur.
type ControlFlags struct {
	UserEndedSession          bool
	AllowAutoRestart          bool
	SessionManagementDisabled bool
}

// FailureWindow tracks recent connection failures for the circuit breaker.
// Reset on any successful connection.
type FailureWindow struct {
	ConsecutiveFailures int
	LastFailureAt       time.Time
	CircuitOpenUntil    time.Time
}

// Snapshot is a fully-typed value view of all session state. Snapshots
// carried by the stateChanged event are assembled after the mutating
// operation has settled and reflect it completely. Each field is
// consistent on its own; a snapshot pulled via State during a
// concurrent mutation may mix fields from before and after it.
type Snapshot struct {
	Session       *Session
	Connection    ConnectionPhase
	Operation     OperationPhase
	Flags         ControlFlags
	Failures      FailureWindow
	History       []TranscriptEntry
	Route         AudioRoute
	TutorSpeaking bool
}

// ScenarioInfo identifies a scenario and proficiency level pairing.
type ScenarioInfo struct {
	ScenarioID string
	Level      string
}

// TranscriptDelta carries one incremental tutor transcript fragment along
// with the running concatenation for progressive display.
type TranscriptDelta struct {
	Delta      string
	Transcript string
}
