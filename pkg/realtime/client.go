// Package realtime provides the WebSocket transport for live tutoring
// conversations. It issues a signed realtime token over REST, dials the
// conversation endpoint, and surfaces transcript, speech, and connection
// events through the session.Transport callback interface.
package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/linguo-app/go-linguo/pkg/session"
)

// ErrMissingAPIKey indicates no API key was configured.
var ErrMissingAPIKey = errors.New("realtime: api key is required")

// ErrAlreadyConnected indicates Connect was called on a live connection.
var ErrAlreadyConnected = errors.New("realtime: already connected")

// Client implements session.Transport against the tutoring realtime
// backend. Conversation frames are JSON text messages; microphone audio
// travels as base64 chunks.
type Client struct {
	config *Config
	logger *slog.Logger
	api    *apiClient

	mu         sync.RWMutex
	conn       *websocket.Conn
	connected  bool
	cancelRead context.CancelFunc

	// Callbacks
	onConnectionState func(phase session.ConnectionPhase)
	onTranscriptDelta func(speaker session.Speaker, delta string)
	onTranscriptFinal func(speaker session.Speaker, text string)
	onSpeechStart     func()
	onSpeechEnd       func()
	onError           func(err error)

	messagesSent     atomic.Int64
	messagesReceived atomic.Int64
}

// NewClient creates a realtime client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		config: cfg,
		logger: cfg.Logger.With("component", "realtime.client"),
		api:    newAPIClient(cfg.APIKey, cfg.APIBaseURL),
	}, nil
}

// Connect issues a realtime token and dials the conversation WebSocket.
func (c *Client) Connect(ctx context.Context, opts session.ConnectOptions) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.mu.Unlock()

	token, err := c.api.IssueToken(ctx, TokenRequest{
		ScenarioID: opts.ScenarioID,
		Level:      opts.Level,
		UserRef:    opts.UserRef,
	})
	if err != nil {
		return err
	}

	endpoint := c.config.ConverseURL
	if endpoint == "" {
		endpoint = token.ConverseURL
	}
	wsURL, err := url.Parse(endpoint)
	if err != nil || wsURL.Host == "" {
		return session.NewConnectionError("invalid converse endpoint", err, false)
	}

	q := wsURL.Query()
	q.Set("token", token.Token)
	wsURL.RawQuery = q.Encode()

	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.Timeout,
	}

	c.logger.Info("dialing realtime backend",
		"scenario", opts.ScenarioID,
		"level", opts.Level,
	)

	conn, resp, err := dialer.DialContext(ctx, wsURL.String(), http.Header{})
	if err != nil {
		if resp != nil {
			return session.NewConnectionError(
				fmt.Sprintf("dial failed with status %d", resp.StatusCode),
				err,
				resp.StatusCode >= 500,
			)
		}
		return session.NewConnectionError("dial failed", err, true)
	}

	msgCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.cancelRead = cancel
	c.mu.Unlock()

	go c.handleMessages(msgCtx)

	c.logger.Info("connected to realtime backend")
	return nil
}

// Close gracefully closes the connection. Safe to call when not
// connected.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancelRead != nil {
		c.cancelRead()
		c.cancelRead = nil
	}

	if c.conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			deadline,
		)
		c.conn.Close()
		c.conn = nil
	}

	if c.connected {
		c.connected = false
		c.logger.Info("disconnected from realtime backend")
	}
	return nil
}

// IsConnected returns true if the WebSocket is live.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SendAudio streams one chunk of PCM16 microphone audio.
func (c *Client) SendAudio(pcm16 []byte) error {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()

	if !connected || conn == nil {
		return session.ErrNotConnected
	}

	msg := audioChunkMessage{
		UserAudioChunk: base64.StdEncoding.EncodeToString(pcm16),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("realtime: marshal failed: %w", err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return session.NewConnectionError("send audio failed", err, true)
	}

	c.messagesSent.Add(1)
	return nil
}

// OnConnectionState sets the connection phase callback.
func (c *Client) OnConnectionState(fn func(phase session.ConnectionPhase)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnectionState = fn
}

// OnTranscriptDelta sets the transcript fragment callback.
func (c *Client) OnTranscriptDelta(fn func(speaker session.Speaker, delta string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTranscriptDelta = fn
}

// OnTranscriptFinal sets the completed utterance callback.
func (c *Client) OnTranscriptFinal(fn func(speaker session.Speaker, text string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTranscriptFinal = fn
}

// OnSpeechStart sets the tutor speech start callback.
func (c *Client) OnSpeechStart(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSpeechStart = fn
}

// OnSpeechEnd sets the tutor speech end callback.
func (c *Client) OnSpeechEnd(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSpeechEnd = fn
}

// OnError sets the error callback.
func (c *Client) OnError(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// handleMessages processes incoming WebSocket frames until the
// connection ends.
func (c *Client) handleMessages(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		if conn == nil {
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || !c.IsConnected() {
				// Intentional close.
				return
			}
			c.markDisconnected()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("connection closed by backend")
				c.emitConnectionState(session.PhaseDisconnected)
				return
			}
			c.logger.Error("read error", "error", err)
			c.emitError(session.NewConnectionError("read failed", err, true))
			c.emitConnectionState(session.PhaseFailed)
			return
		}

		c.messagesReceived.Add(1)

		var msg incomingMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("failed to parse message", "error", err)
			continue
		}

		c.handleMessage(msg)
	}
}

// handleMessage dispatches a single frame.
func (c *Client) handleMessage(msg incomingMessage) {
	switch msg.Type {
	case msgSessionReady:
		c.logger.Debug("session ready")

	case msgTranscriptDelta:
		c.emitTranscriptDelta(wireSpeaker(msg.Speaker), msg.Delta)

	case msgTranscriptFinal:
		c.emitTranscriptFinal(wireSpeaker(msg.Speaker), msg.Text)

	case msgSpeechStarted:
		c.emitSpeechStart()

	case msgSpeechEnded:
		c.emitSpeechEnd()

	case msgError:
		c.emitError(session.NewConnectionError(
			fmt.Sprintf("backend error %s: %s", msg.Code, msg.Message),
			nil,
			msg.Code != "session_expired",
		))

	case msgPing:
		eventID := 0
		if msg.PingEvent != nil {
			eventID = msg.PingEvent.EventID
		}
		c.sendPong(eventID)

	default:
		c.logger.Debug("unhandled message type", "type", msg.Type)
	}
}

// sendPong responds to a backend ping with the event_id.
func (c *Client) sendPong(eventID int) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return
	}

	data, _ := json.Marshal(pongMessage{Type: "pong", EventID: eventID})
	_ = conn.WriteMessage(websocket.TextMessage, data)
	c.messagesSent.Add(1)
}

func (c *Client) markDisconnected() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

func wireSpeaker(s string) session.Speaker {
	if s == wireSpeakerUser {
		return session.SpeakerUser
	}
	return session.SpeakerTutor
}

// Emit helpers

func (c *Client) emitConnectionState(phase session.ConnectionPhase) {
	c.mu.RLock()
	fn := c.onConnectionState
	c.mu.RUnlock()
	if fn != nil {
		fn(phase)
	}
}

func (c *Client) emitTranscriptDelta(speaker session.Speaker, delta string) {
	c.mu.RLock()
	fn := c.onTranscriptDelta
	c.mu.RUnlock()
	if fn != nil {
		fn(speaker, delta)
	}
}

func (c *Client) emitTranscriptFinal(speaker session.Speaker, text string) {
	c.mu.RLock()
	fn := c.onTranscriptFinal
	c.mu.RUnlock()
	if fn != nil {
		fn(speaker, text)
	}
}

func (c *Client) emitSpeechStart() {
	c.mu.RLock()
	fn := c.onSpeechStart
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (c *Client) emitSpeechEnd() {
	c.mu.RLock()
	fn := c.onSpeechEnd
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (c *Client) emitError(err error) {
	c.mu.RLock()
	fn := c.onError
	c.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// Verify Client implements session.Transport.
var _ session.Transport = (*Client)(nil)
