package realtime

// Wire types for the tutoring realtime protocol. All frames are JSON text
// messages; user audio is the one exception to the type-tagged envelope
// and travels as a flat user_audio_chunk object.

type incomingMessage struct {
	Type string `json:"type"`

	// transcript_delta and transcript_final
	Speaker string `json:"speaker,omitempty"`
	Delta   string `json:"delta,omitempty"`
	Text    string `json:"text,omitempty"`

	// error
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	// ping
	PingEvent *pingEvent `json:"ping_event,omitempty"`
}

type pingEvent struct {
	EventID int `json:"event_id"`
}

type pongMessage struct {
	Type    string `json:"type"`
	EventID int    `json:"event_id"`
}

type audioChunkMessage struct {
	UserAudioChunk string `json:"user_audio_chunk"`
}

// Message types sent by the backend.
const (
	msgSessionReady    = "session_ready"
	msgTranscriptDelta = "transcript_delta"
	msgTranscriptFinal = "transcript_final"
	msgSpeechStarted   = "speech_started"
	msgSpeechEnded     = "speech_ended"
	msgError           = "error"
	msgPing            = "ping"
)

// Speaker values on the wire.
const (
	wireSpeakerUser  = "user"
	wireSpeakerTutor = "tutor"
)
