package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bep/debounce"
)

// audioCoordinator tracks the current audio output route and notifies the
// external router to re-apply routing on changes. It holds no state
// machine beyond the single AudioRoute record; policy only, never the
// routing mechanism itself.
//
// Hardware flaps (a Bluetooth headset reconnecting, for example) arrive
// in bursts, so the re-apply call is debounced. Change events are emitted
// immediately and are not debounced.
type audioCoordinator struct {
	mu     sync.Mutex
	route  AudioRoute
	router AudioRouter
	logger *slog.Logger

	debounced func(fn func())
	onChange  func(route AudioRoute)
}

func newAudioCoordinator(router AudioRouter, settle time.Duration, logger *slog.Logger) *audioCoordinator {
	if settle <= 0 {
		settle = 250 * time.Millisecond
	}
	return &audioCoordinator{
		route:     AudioRoute{Device: DeviceSpeaker, Available: true},
		router:    router,
		logger:    logger,
		debounced: debounce.New(settle),
	}
}

// DeviceChanged records a hardware device notification and schedules a
// routing re-apply.
func (c *audioCoordinator) DeviceChanged(device AudioDevice, available bool) {
	c.mu.Lock()
	c.route = AudioRoute{Device: device, Available: available}
	route := c.route
	onChange := c.onChange
	c.mu.Unlock()

	if onChange != nil {
		onChange(route)
	}
	c.debounced(c.reapply)
}

func (c *audioCoordinator) reapply() {
	c.mu.Lock()
	route := c.route
	router := c.router
	c.mu.Unlock()

	if router == nil {
		return
	}
	if err := router.ApplyRoute(route); err != nil {
		c.logger.Warn("audio route re-apply failed",
			"device", route.Device,
			"error", err,
		)
	}
}

// Route returns the current audio route.
func (c *audioCoordinator) Route() AudioRoute {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.route
}
