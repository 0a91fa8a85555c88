package session

import "context"

// ConnectOptions carries the session parameters for a transport handshake.
type ConnectOptions struct {
	// ScenarioID names the conversational context for the tutor.
	ScenarioID string

	// Level is the learner's proficiency level.
	Level string

	// UserRef identifies the learner to the backend.
	UserRef string
}

// Transport is the real-time voice transport collaborator. Implementations
// handle the wire protocol (codec, signaling, packetization); the session
// service only drives lifecycle and consumes events.
//
// Connect must observe ctx cancellation and settle rather than block
// forever. Callbacks may be invoked from the transport's read goroutine.
type Transport interface {
	// Connect establishes the connection for one session.
	Connect(ctx context.Context, opts ConnectOptions) error

	// Close shuts down the connection and releases transport resources.
	Close() error

	// IsConnected reports whether a connection is active.
	IsConnected() bool

	// SendAudio streams PCM16 audio to the tutor.
	SendAudio(pcm16 []byte) error

	// OnConnectionState sets the callback for transport-reported phase
	// changes (connected, disconnected, failed).
	OnConnectionState(fn func(phase ConnectionPhase))

	// OnTranscriptDelta sets the callback for incremental transcript
	// fragments.
	OnTranscriptDelta(fn func(speaker Speaker, delta string))

	// OnTranscriptFinal sets the callback for utterance completion. An
	// empty text means the accumulated deltas are authoritative.
	OnTranscriptFinal(fn func(speaker Speaker, text string))

	// OnSpeechStart sets the callback for when the tutor starts speaking.
	OnSpeechStart(fn func())

	// OnSpeechEnd sets the callback for when the tutor stops speaking.
	OnSpeechEnd(fn func())

	// OnError sets the callback for transport errors.
	OnError(fn func(err error))
}

// AudioRouter re-applies hardware audio routing after a device change.
// The coordinator decides when to call it; the router owns the mechanism.
type AudioRouter interface {
	ApplyRoute(route AudioRoute) error
}
