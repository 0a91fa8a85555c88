package realtime

import (
	"log/slog"
	"time"
)

const (
	defaultAPIBaseURL = "https://api.linguo.app/v1"
	defaultTimeout    = 10 * time.Second
	defaultReadLimit  = 60 * time.Second
)

// Config holds settings for the realtime client.
type Config struct {
	// APIKey authenticates against the tutoring backend.
	APIKey string

	// APIBaseURL is the REST base URL used to issue realtime tokens.
	APIBaseURL string

	// ConverseURL overrides the WebSocket endpoint returned by the token
	// endpoint. Mainly for tests.
	ConverseURL string

	// Timeout bounds the token request and the WebSocket handshake.
	Timeout time.Duration

	// ReadTimeout bounds how long the read loop waits for a message.
	// The backend pings well inside this interval.
	ReadTimeout time.Duration

	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		APIBaseURL:  defaultAPIBaseURL,
		Timeout:     defaultTimeout,
		ReadTimeout: defaultReadLimit,
		Logger:      slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Option is a functional option for configuring the client.
type Option func(*Config)

// WithAPIKey sets the backend API key.
func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithAPIBaseURL sets the REST base URL.
func WithAPIBaseURL(url string) Option {
	return func(c *Config) {
		c.APIBaseURL = url
	}
}

// WithConverseURL pins the WebSocket endpoint.
func WithConverseURL(url string) Option {
	return func(c *Config) {
		c.ConverseURL = url
	}
}

// WithTimeout sets the handshake timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithReadTimeout sets the read loop deadline.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.ReadTimeout = d
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
