package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/linguo-app/go-linguo/internal/httpc"
	"github.com/linguo-app/go-linguo/pkg/session"
)

// TokenRequest asks the backend to mint a short-lived realtime token for
// one conversation.
type TokenRequest struct {
	ScenarioID string `json:"scenario_id"`
	Level      string `json:"level"`
	UserRef    string `json:"user_ref,omitempty"`
}

// TokenResponse carries the signed token and the WebSocket endpoint to
// dial with it.
type TokenResponse struct {
	Token       string    `json:"token"`
	ConverseURL string    `json:"converse_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// apiClient handles REST calls to the tutoring backend.
type apiClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func newAPIClient(apiKey, baseURL string) *apiClient {
	return &apiClient{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: httpc.Client,
	}
}

// IssueToken mints a realtime token for the scenario. Upstream rejections
// are mapped onto the session error taxonomy so the caller can decide
// whether to retry.
func (c *apiClient) IssueToken(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal token request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/realtime/tokens", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, session.NewConnectionError("token request failed", err, true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, tokenError(resp)
	}

	var result TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if result.Token == "" {
		return nil, session.NewConnectionError("token response missing token", nil, false)
	}

	return &result, nil
}

func tokenError(resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(resp.Body)
	detail := fmt.Errorf("status %d: %s", resp.StatusCode, string(bodyBytes))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &session.RateLimitError{
			RetryAfter: retryAfter(resp),
			Cause:      detail,
		}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return session.NewConnectionError("token rejected", detail, false)
	case resp.StatusCode >= 500:
		return session.NewConnectionError("token endpoint unavailable", detail, true)
	default:
		return session.NewConnectionError("token request rejected", detail, false)
	}
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}
