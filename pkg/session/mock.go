package session

import (
	"context"
	"sync"
)

// Mock is a mock implementation of Transport for testing.
type Mock struct {
	mu sync.RWMutex

	// State
	connected bool

	// Callbacks
	onConnectionState func(phase ConnectionPhase)
	onTranscriptDelta func(speaker Speaker, delta string)
	onTranscriptFinal func(speaker Speaker, text string)
	onSpeechStart     func()
	onSpeechEnd       func()
	onError           func(err error)

	// Configurable behavior
	ConnectFunc   func(ctx context.Context, opts ConnectOptions) error
	CloseFunc     func() error
	SendAudioFunc func(pcm16 []byte) error

	// Captured calls for assertions
	ConnectCalls []ConnectOptions
	CloseCalls   int
	AudioSent    [][]byte
}

// NewMock creates a new Mock transport.
func NewMock() *Mock {
	return &Mock{}
}

// Connect implements Transport.
func (m *Mock) Connect(ctx context.Context, opts ConnectOptions) error {
	m.mu.Lock()
	m.ConnectCalls = append(m.ConnectCalls, opts)
	m.mu.Unlock()
	if m.ConnectFunc != nil {
		return m.ConnectFunc(ctx, opts)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

// Close implements Transport.
func (m *Mock) Close() error {
	m.mu.Lock()
	m.CloseCalls++
	m.mu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

// IsConnected implements Transport.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// SendAudio implements Transport.
func (m *Mock) SendAudio(pcm16 []byte) error {
	if m.SendAudioFunc != nil {
		return m.SendAudioFunc(pcm16)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.AudioSent = append(m.AudioSent, pcm16)
	return nil
}

// OnConnectionState implements Transport.
func (m *Mock) OnConnectionState(fn func(phase ConnectionPhase)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnectionState = fn
}

// OnTranscriptDelta implements Transport.
func (m *Mock) OnTranscriptDelta(fn func(speaker Speaker, delta string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTranscriptDelta = fn
}

// OnTranscriptFinal implements Transport.
func (m *Mock) OnTranscriptFinal(fn func(speaker Speaker, text string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTranscriptFinal = fn
}

// OnSpeechStart implements Transport.
func (m *Mock) OnSpeechStart(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSpeechStart = fn
}

// OnSpeechEnd implements Transport.
func (m *Mock) OnSpeechEnd(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSpeechEnd = fn
}

// OnError implements Transport.
func (m *Mock) OnError(fn func(err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onError = fn
}

// Test helpers

// SimulateConnectionState triggers the OnConnectionState callback.
func (m *Mock) SimulateConnectionState(phase ConnectionPhase) {
	m.mu.RLock()
	fn := m.onConnectionState
	m.mu.RUnlock()
	if fn != nil {
		fn(phase)
	}
}

// SimulateTranscriptDelta triggers the OnTranscriptDelta callback.
func (m *Mock) SimulateTranscriptDelta(speaker Speaker, delta string) {
	m.mu.RLock()
	fn := m.onTranscriptDelta
	m.mu.RUnlock()
	if fn != nil {
		fn(speaker, delta)
	}
}

// SimulateTranscriptFinal triggers the OnTranscriptFinal callback.
func (m *Mock) SimulateTranscriptFinal(speaker Speaker, text string) {
	m.mu.RLock()
	fn := m.onTranscriptFinal
	m.mu.RUnlock()
	if fn != nil {
		fn(speaker, text)
	}
}

// SimulateSpeechStart triggers the OnSpeechStart callback.
func (m *Mock) SimulateSpeechStart() {
	m.mu.RLock()
	fn := m.onSpeechStart
	m.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// SimulateSpeechEnd triggers the OnSpeechEnd callback.
func (m *Mock) SimulateSpeechEnd() {
	m.mu.RLock()
	fn := m.onSpeechEnd
	m.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// SimulateError triggers the OnError callback.
func (m *Mock) SimulateError(err error) {
	m.mu.RLock()
	fn := m.onError
	m.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// Verify Mock implements Transport.
var _ Transport = (*Mock)(nil)
