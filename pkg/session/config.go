package session

import (
	"log/slog"
	"time"
)

// Config holds tunable parameters for the conversation session service.
// The timings are deliberately configuration, not constants: the debounce
// window, teardown grace, and resync interval all have sane defaults but
// vary by deployment.
type Config struct {
	// DebounceWindow suppresses identical start requests arriving within
	// this window of each other.
	DebounceWindow time.Duration

	// TeardownGrace is how long destructive teardown is deferred while
	// the tutor is still speaking, so an utterance is not cut off.
	TeardownGrace time.Duration

	// FailureThreshold is how many consecutive connection failures within
	// FailureWindow open the circuit breaker.
	FailureThreshold int

	// FailureWindow is the rolling window for counting failures.
	FailureWindow time.Duration

	// BreakerCooldown is how long the breaker stays open once tripped.
	BreakerCooldown time.Duration

	// ResyncInterval is how often the current snapshot is pushed to
	// observers to reconcile with the transport. The resync tick is
	// read-only; it never starts or stops sessions.
	ResyncInterval time.Duration

	// DeviceSettle debounces routing re-application when the hardware
	// reports a burst of device changes.
	DeviceSettle time.Duration

	// Logger is the structured logger to use.
	Logger *slog.Logger

	// Now is the clock. Overridable for tests.
	Now func() time.Time
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceWindow:   time.Second,
		TeardownGrace:    3 * time.Second,
		FailureThreshold: 4,
		FailureWindow:    30 * time.Second,
		BreakerCooldown:  60 * time.Second,
		ResyncInterval:   5 * time.Second,
		DeviceSettle:     250 * time.Millisecond,
		Logger:           slog.Default(),
		Now:              time.Now,
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if c.FailureThreshold < 1 {
		c.FailureThreshold = 1
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return nil
}

// Option is a functional option for configuring the service.
type Option func(*Config)

// WithDebounceWindow sets the duplicate-start suppression window.
func WithDebounceWindow(d time.Duration) Option {
	return func(c *Config) {
		c.DebounceWindow = d
	}
}

// WithTeardownGrace sets the deferred-teardown grace delay.
func WithTeardownGrace(d time.Duration) Option {
	return func(c *Config) {
		c.TeardownGrace = d
	}
}

// WithCircuitBreaker configures the failure circuit breaker.
func WithCircuitBreaker(threshold int, window, cooldown time.Duration) Option {
	return func(c *Config) {
		c.FailureThreshold = threshold
		c.FailureWindow = window
		c.BreakerCooldown = cooldown
	}
}

// WithResyncInterval sets the snapshot resync interval.
func WithResyncInterval(d time.Duration) Option {
	return func(c *Config) {
		c.ResyncInterval = d
	}
}

// WithDeviceSettle sets the audio routing debounce interval.
func WithDeviceSettle(d time.Duration) Option {
	return func(c *Config) {
		c.DeviceSettle = d
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithClock sets the time source, used by tests to drive the breaker and
// debounce deterministically.
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		c.Now = now
	}
}
