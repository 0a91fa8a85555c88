package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/linguo-app/go-linguo/pkg/session"
)

const testToken = "tok-abc123"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBackend is an in-process tutoring backend: a token endpoint plus a
// WebSocket converse endpoint.
type fakeBackend struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu        sync.Mutex
	tokenReqs []TokenRequest
	authz     []string
	conn      *websocket.Conn
	received  chan map[string]any
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{t: t, received: make(chan map[string]any, 64)}

	mux := http.NewServeMux()
	mux.HandleFunc("/realtime/tokens", b.handleToken)
	mux.HandleFunc("/converse", b.handleConverse)
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) converseURL() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http") + "/converse"
}

func (b *fakeBackend) handleToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	b.tokenReqs = append(b.tokenReqs, req)
	b.authz = append(b.authz, r.Header.Get("Authorization"))
	b.mu.Unlock()

	_ = json.NewEncoder(w).Encode(TokenResponse{
		Token:       testToken,
		ConverseURL: b.converseURL(),
		ExpiresAt:   time.Now().Add(time.Minute),
	})
}

func (b *fakeBackend) handleConverse(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("token") != testToken {
		http.Error(w, "bad token", http.StatusUnauthorized)
		return
	}
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()

	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		b.received <- msg
	}
}

func (b *fakeBackend) send(t *testing.T, msg any) {
	t.Helper()
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		t.Fatal("no websocket connection")
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("backend send failed: %v", err)
	}
}

func newTestClient(t *testing.T, b *fakeBackend) *Client {
	t.Helper()
	c, err := NewClient(
		WithAPIKey("sk-test"),
		WithAPIBaseURL(b.srv.URL),
		WithLogger(discardLogger()),
		WithTimeout(2*time.Second),
		WithReadTimeout(5*time.Second),
	)
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestClientConnect(t *testing.T) {
	t.Run("requires api key", func(t *testing.T) {
		if _, err := NewClient(); !errors.Is(err, ErrMissingAPIKey) {
			t.Errorf("expected ErrMissingAPIKey, got %v", err)
		}
	})

	t.Run("issues token then dials", func(t *testing.T) {
		b := newFakeBackend(t)
		c := newTestClient(t, b)

		err := c.Connect(context.Background(), session.ConnectOptions{
			ScenarioID: "cafe",
			Level:      "beginner",
			UserRef:    "u1",
		})
		if err != nil {
			t.Fatalf("connect failed: %v", err)
		}
		if !c.IsConnected() {
			t.Error("client not connected")
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		if len(b.tokenReqs) != 1 {
			t.Fatalf("expected 1 token request, got %d", len(b.tokenReqs))
		}
		if b.tokenReqs[0].ScenarioID != "cafe" || b.tokenReqs[0].Level != "beginner" {
			t.Errorf("token request mismatch: %+v", b.tokenReqs[0])
		}
		if b.authz[0] != "Bearer sk-test" {
			t.Errorf("authorization mismatch: %q", b.authz[0])
		}
	})

	t.Run("rejects double connect", func(t *testing.T) {
		b := newFakeBackend(t)
		c := newTestClient(t, b)

		if err := c.Connect(context.Background(), session.ConnectOptions{ScenarioID: "cafe"}); err != nil {
			t.Fatalf("connect failed: %v", err)
		}
		if err := c.Connect(context.Background(), session.ConnectOptions{ScenarioID: "cafe"}); !errors.Is(err, ErrAlreadyConnected) {
			t.Errorf("expected ErrAlreadyConnected, got %v", err)
		}
	})

	t.Run("close is idempotent", func(t *testing.T) {
		b := newFakeBackend(t)
		c := newTestClient(t, b)

		if err := c.Connect(context.Background(), session.ConnectOptions{ScenarioID: "cafe"}); err != nil {
			t.Fatalf("connect failed: %v", err)
		}
		if err := c.Close(); err != nil {
			t.Errorf("close failed: %v", err)
		}
		if err := c.Close(); err != nil {
			t.Errorf("second close failed: %v", err)
		}
		if c.IsConnected() {
			t.Error("still connected after close")
		}
	})
}

func TestClientTokenErrors(t *testing.T) {
	newClientFor := func(t *testing.T, handler http.HandlerFunc) *Client {
		t.Helper()
		srv := httptest.NewServer(handler)
		t.Cleanup(srv.Close)
		c, err := NewClient(
			WithAPIKey("sk-test"),
			WithAPIBaseURL(srv.URL),
			WithLogger(discardLogger()),
		)
		if err != nil {
			t.Fatalf("new client failed: %v", err)
		}
		return c
	}

	t.Run("unauthorized is not retryable", func(t *testing.T) {
		c := newClientFor(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad key", http.StatusUnauthorized)
		})

		err := c.Connect(context.Background(), session.ConnectOptions{ScenarioID: "cafe"})
		var connErr *session.ConnectionError
		if !errors.As(err, &connErr) {
			t.Fatalf("expected ConnectionError, got %v", err)
		}
		if connErr.Retryable {
			t.Error("rejected credentials must not be retryable")
		}
	})

	t.Run("throttling maps to rate limit", func(t *testing.T) {
		c := newClientFor(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "7")
			http.Error(w, "slow down", http.StatusTooManyRequests)
		})

		err := c.Connect(context.Background(), session.ConnectOptions{ScenarioID: "cafe"})
		var rateErr *session.RateLimitError
		if !errors.As(err, &rateErr) {
			t.Fatalf("expected RateLimitError, got %v", err)
		}
		if rateErr.RetryAfter != 7*time.Second {
			t.Errorf("retry-after mismatch: %v", rateErr.RetryAfter)
		}
	})

	t.Run("server error is retryable", func(t *testing.T) {
		c := newClientFor(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		})

		err := c.Connect(context.Background(), session.ConnectOptions{ScenarioID: "cafe"})
		if !session.IsRetryable(err) {
			t.Errorf("expected retryable error, got %v", err)
		}
	})
}

func TestClientAudio(t *testing.T) {
	t.Run("audio travels as base64 chunks", func(t *testing.T) {
		b := newFakeBackend(t)
		c := newTestClient(t, b)

		if err := c.Connect(context.Background(), session.ConnectOptions{ScenarioID: "cafe"}); err != nil {
			t.Fatalf("connect failed: %v", err)
		}

		pcm := []byte{0x01, 0x02, 0x03, 0x04}
		if err := c.SendAudio(pcm); err != nil {
			t.Fatalf("send audio failed: %v", err)
		}

		select {
		case msg := <-b.received:
			encoded, _ := msg["user_audio_chunk"].(string)
			decoded, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				t.Fatalf("chunk not base64: %v", err)
			}
			if string(decoded) != string(pcm) {
				t.Errorf("audio mismatch: %v", decoded)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("backend never received the chunk")
		}
	})

	t.Run("send when not connected", func(t *testing.T) {
		b := newFakeBackend(t)
		c := newTestClient(t, b)

		if err := c.SendAudio([]byte{1}); !errors.Is(err, session.ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got %v", err)
		}
	})
}

func TestClientDispatch(t *testing.T) {
	b := newFakeBackend(t)
	c := newTestClient(t, b)

	type delta struct {
		speaker session.Speaker
		text    string
	}
	deltaCh := make(chan delta, 8)
	finalCh := make(chan delta, 8)
	speechStart := make(chan struct{}, 1)
	speechEnd := make(chan struct{}, 1)
	errCh := make(chan error, 1)

	c.OnTranscriptDelta(func(s session.Speaker, d string) {
		deltaCh <- delta{s, d}
	})
	c.OnTranscriptFinal(func(s session.Speaker, text string) {
		finalCh <- delta{s, text}
	})
	c.OnSpeechStart(func() { speechStart <- struct{}{} })
	c.OnSpeechEnd(func() { speechEnd <- struct{}{} })
	c.OnError(func(err error) { errCh <- err })

	if err := c.Connect(context.Background(), session.ConnectOptions{ScenarioID: "cafe"}); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	t.Run("transcript frames", func(t *testing.T) {
		b.send(t, map[string]any{"type": "transcript_delta", "speaker": "tutor", "delta": "안녕"})
		select {
		case got := <-deltaCh:
			if got.speaker != session.SpeakerTutor || got.text != "안녕" {
				t.Errorf("delta mismatch: %+v", got)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("delta never arrived")
		}

		b.send(t, map[string]any{"type": "transcript_final", "speaker": "user", "text": "hello"})
		select {
		case got := <-finalCh:
			if got.speaker != session.SpeakerUser || got.text != "hello" {
				t.Errorf("final mismatch: %+v", got)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("final never arrived")
		}
	})

	t.Run("speech frames", func(t *testing.T) {
		b.send(t, map[string]any{"type": "speech_started"})
		waitFor(t, speechStart, "speech start")
		b.send(t, map[string]any{"type": "speech_ended"})
		waitFor(t, speechEnd, "speech end")
	})

	t.Run("error frames surface typed errors", func(t *testing.T) {
		b.send(t, map[string]any{"type": "error", "code": "upstream_busy", "message": "try later"})
		select {
		case err := <-errCh:
			var connErr *session.ConnectionError
			if !errors.As(err, &connErr) {
				t.Errorf("expected ConnectionError, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("error never arrived")
		}
	})

	t.Run("ping answered with pong", func(t *testing.T) {
		b.send(t, map[string]any{"type": "ping", "ping_event": map[string]any{"event_id": 42}})
		select {
		case msg := <-b.received:
			if msg["type"] != "pong" {
				t.Fatalf("expected pong, got %v", msg)
			}
			if id, _ := msg["event_id"].(float64); int(id) != 42 {
				t.Errorf("event id mismatch: %v", msg["event_id"])
			}
		case <-time.After(2 * time.Second):
			t.Fatal("pong never arrived")
		}
	})
}
