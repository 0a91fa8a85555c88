package session

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeRouter struct {
	mu      sync.Mutex
	applied []AudioRoute
	err     error
}

func (r *fakeRouter) ApplyRoute(route AudioRoute) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, route)
	return r.err
}

func (r *fakeRouter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.applied)
}

func (r *fakeRouter) last() AudioRoute {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applied[len(r.applied)-1]
}

func TestAudioCoordinator(t *testing.T) {
	t.Run("defaults to the built-in speaker", func(t *testing.T) {
		c := newAudioCoordinator(nil, 10*time.Millisecond, discardLogger())

		route := c.Route()
		if route.Device != DeviceSpeaker || !route.Available {
			t.Errorf("unexpected default route: %+v", route)
		}
	})

	t.Run("change events fire immediately", func(t *testing.T) {
		c := newAudioCoordinator(nil, time.Minute, discardLogger())

		var got []AudioRoute
		c.onChange = func(r AudioRoute) { got = append(got, r) }

		c.DeviceChanged(DeviceBluetooth, true)
		c.DeviceChanged(DeviceBluetooth, false)

		if len(got) != 2 {
			t.Fatalf("expected 2 immediate change events, got %d", len(got))
		}
		if got[1].Available {
			t.Error("availability not tracked")
		}
	})

	t.Run("a flap burst coalesces into one re-apply", func(t *testing.T) {
		r := &fakeRouter{}
		c := newAudioCoordinator(r, 20*time.Millisecond, discardLogger())

		// Bluetooth reconnect storms arrive as a burst of availability
		// toggles.
		c.DeviceChanged(DeviceBluetooth, false)
		c.DeviceChanged(DeviceSpeaker, true)
		c.DeviceChanged(DeviceBluetooth, true)

		deadline := time.Now().Add(2 * time.Second)
		for r.count() == 0 {
			if time.Now().After(deadline) {
				t.Fatal("re-apply never ran")
			}
			time.Sleep(5 * time.Millisecond)
		}
		time.Sleep(50 * time.Millisecond)

		if r.count() != 1 {
			t.Errorf("expected 1 coalesced re-apply, got %d", r.count())
		}
		if r.last().Device != DeviceBluetooth {
			t.Errorf("re-apply used stale route: %+v", r.last())
		}
	})

	t.Run("router failure is logged and swallowed", func(t *testing.T) {
		r := &fakeRouter{err: errors.New("audio focus denied")}
		c := newAudioCoordinator(r, 5*time.Millisecond, discardLogger())

		c.DeviceChanged(DeviceHeadset, true)

		deadline := time.Now().Add(2 * time.Second)
		for r.count() == 0 {
			if time.Now().After(deadline) {
				t.Fatal("re-apply never ran")
			}
			time.Sleep(5 * time.Millisecond)
		}
		// The coordinator keeps the route even when re-apply fails.
		if c.Route().Device != DeviceHeadset {
			t.Errorf("route lost after failed re-apply: %+v", c.Route())
		}
	})
}
