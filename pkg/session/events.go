package session

import "sync"

// Callbacks groups every event the service emits, for setting them up in
// one call via Service.Subscribe. Individual OnX setters exist for
// consumers that only care about a few events.
type Callbacks struct {
	OnInitialized            func()
	OnStateChanged           func(Snapshot)
	OnConnectionStateChanged func(ConnectionPhase)
	OnSessionStarted         func(ScenarioInfo)
	OnSessionStopped         func()
	OnScenarioChanged        func(ScenarioInfo)
	OnAISpeechStarted        func()
	OnAISpeechEnded          func()
	OnUserTranscriptComplete func(TranscriptEntry)
	OnAITranscriptDelta      func(TranscriptDelta)
	OnAITranscriptComplete   func(TranscriptEntry)
	OnAudioDeviceChanged     func(AudioRoute)
	OnError                  func(err error)
}

// emitter stores the registered callbacks and invokes them outside any
// service lock.
type emitter struct {
	mu sync.RWMutex
	cb Callbacks
}

func (e *emitter) set(fn func(cb *Callbacks)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.cb)
}

func (e *emitter) snapshot() Callbacks {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cb
}

func (e *emitter) initialized() {
	if fn := e.snapshot().OnInitialized; fn != nil {
		fn()
	}
}

func (e *emitter) stateChanged(s Snapshot) {
	if fn := e.snapshot().OnStateChanged; fn != nil {
		fn(s)
	}
}

func (e *emitter) connectionStateChanged(p ConnectionPhase) {
	if fn := e.snapshot().OnConnectionStateChanged; fn != nil {
		fn(p)
	}
}

func (e *emitter) sessionStarted(info ScenarioInfo) {
	if fn := e.snapshot().OnSessionStarted; fn != nil {
		fn(info)
	}
}

func (e *emitter) sessionStopped() {
	if fn := e.snapshot().OnSessionStopped; fn != nil {
		fn()
	}
}

func (e *emitter) scenarioChanged(info ScenarioInfo) {
	if fn := e.snapshot().OnScenarioChanged; fn != nil {
		fn(info)
	}
}

func (e *emitter) aiSpeechStarted() {
	if fn := e.snapshot().OnAISpeechStarted; fn != nil {
		fn()
	}
}

func (e *emitter) aiSpeechEnded() {
	if fn := e.snapshot().OnAISpeechEnded; fn != nil {
		fn()
	}
}

func (e *emitter) userTranscriptComplete(entry TranscriptEntry) {
	if fn := e.snapshot().OnUserTranscriptComplete; fn != nil {
		fn(entry)
	}
}

func (e *emitter) aiTranscriptDelta(d TranscriptDelta) {
	if fn := e.snapshot().OnAITranscriptDelta; fn != nil {
		fn(d)
	}
}

func (e *emitter) aiTranscriptComplete(entry TranscriptEntry) {
	if fn := e.snapshot().OnAITranscriptComplete; fn != nil {
		fn(entry)
	}
}

func (e *emitter) audioDeviceChanged(route AudioRoute) {
	if fn := e.snapshot().OnAudioDeviceChanged; fn != nil {
		fn(route)
	}
}

func (e *emitter) error(err error) {
	if fn := e.snapshot().OnError; fn != nil {
		fn(err)
	}
}
