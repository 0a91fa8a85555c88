package session

import (
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := DefaultConfig()

		if cfg.DebounceWindow != time.Second {
			t.Errorf("debounce window: %v", cfg.DebounceWindow)
		}
		if cfg.TeardownGrace != 3*time.Second {
			t.Errorf("teardown grace: %v", cfg.TeardownGrace)
		}
		if cfg.FailureThreshold != 4 {
			t.Errorf("failure threshold: %d", cfg.FailureThreshold)
		}
		if cfg.FailureWindow != 30*time.Second {
			t.Errorf("failure window: %v", cfg.FailureWindow)
		}
		if cfg.BreakerCooldown != 60*time.Second {
			t.Errorf("breaker cooldown: %v", cfg.BreakerCooldown)
		}
		if cfg.ResyncInterval != 5*time.Second {
			t.Errorf("resync interval: %v", cfg.ResyncInterval)
		}
		if cfg.Logger == nil || cfg.Now == nil {
			t.Error("logger and clock must default")
		}
	})

	t.Run("options override defaults", func(t *testing.T) {
		clock := newFakeClock()
		cfg := DefaultConfig()
		cfg.Apply(
			WithDebounceWindow(2*time.Second),
			WithTeardownGrace(5*time.Second),
			WithCircuitBreaker(2, 10*time.Second, 20*time.Second),
			WithResyncInterval(time.Second),
			WithDeviceSettle(100*time.Millisecond),
			WithLogger(discardLogger()),
			WithClock(clock.Now),
		)

		if cfg.DebounceWindow != 2*time.Second {
			t.Errorf("debounce window: %v", cfg.DebounceWindow)
		}
		if cfg.TeardownGrace != 5*time.Second {
			t.Errorf("teardown grace: %v", cfg.TeardownGrace)
		}
		if cfg.FailureThreshold != 2 || cfg.FailureWindow != 10*time.Second || cfg.BreakerCooldown != 20*time.Second {
			t.Error("circuit breaker options not applied")
		}
		if !cfg.Now().Equal(clock.Now()) {
			t.Error("clock option not applied")
		}
	})

	t.Run("validate repairs unusable values", func(t *testing.T) {
		cfg := &Config{}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("validate failed: %v", err)
		}
		if cfg.FailureThreshold < 1 {
			t.Error("threshold not repaired")
		}
		if cfg.Logger == nil || cfg.Now == nil {
			t.Error("logger and clock not repaired")
		}
	})
}
