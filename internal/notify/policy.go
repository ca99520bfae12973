package notify

import (
	"fmt"
	"time"

	"github.com/nerrad567/bluegauge/internal/events"
	"github.com/nerrad567/bluegauge/internal/infrastructure/config"
)

// Category is a user-togglable class of notification.
type Category int

const (
	CategoryAdded Category = iota
	CategoryRemoved
	CategoryDisconnected
	CategoryReconnected
	CategoryLowBattery
)

func (c Category) String() string {
	switch c {
	case CategoryAdded:
		return "added"
	case CategoryRemoved:
		return "removed"
	case CategoryDisconnected:
		return "disconnected"
	case CategoryReconnected:
		return "reconnected"
	case CategoryLowBattery:
		return "low_battery"
	}
	return fmt.Sprintf("category(%d)", int(c))
}

func (c Category) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// CategoryOf maps an event kind to its category. BatteryChanged and
// LowBatteryRecovered are never notified.
func CategoryOf(k events.Kind) (Category, bool) {
	switch k {
	case events.Added:
		return CategoryAdded, true
	case events.Removed:
		return CategoryRemoved, true
	case events.Disconnected:
		return CategoryDisconnected, true
	case events.Reconnected:
		return CategoryReconnected, true
	case events.LowBatteryCrossing:
		return CategoryLowBattery, true
	}
	return 0, false
}

// Enabled reports whether cfg turns this category on.
func (c Category) Enabled(cfg config.NotificationConfig) bool {
	switch c {
	case CategoryAdded:
		return cfg.NotifyAdded
	case CategoryRemoved:
		return cfg.NotifyRemoved
	case CategoryDisconnected:
		return cfg.NotifyDisconnect
	case CategoryReconnected:
		return cfg.NotifyReconnect
	case CategoryLowBattery:
		return cfg.NotifyLowBattery
	}
	return false
}

// Notification is a user-visible message derived from one event.
type Notification struct {
	Category Category     `json:"category"`
	Identity string       `json:"identity"`
	Title    string       `json:"title"`
	Body     string       `json:"body"`
	Event    events.Event `json:"event"`
	At       time.Time    `json:"at"`
}

type debounceKey struct {
	identity string
	category Category
}

// Policy turns events into notifications. It remembers what it emitted for
// debouncing, so one Policy must be reused across cycles. Not safe for
// concurrent use; the scheduler goroutine owns it.
type Policy struct {
	lastSent map[debounceKey]time.Time
}

func NewPolicy() *Policy {
	return &Policy{lastSent: make(map[debounceKey]time.Time)}
}

// Filter keeps the events cfg asks for, in their original order, and drops
// any (identity, category) pair already emitted within the debounce window.
// With MuteAll set nothing is emitted and debounce state is left untouched.
func (p *Policy) Filter(evs []events.Event, cfg config.NotificationConfig, now time.Time) []Notification {
	if cfg.MuteAll {
		return nil
	}
	window := time.Duration(cfg.DebounceSeconds) * time.Second
	p.expire(now, window)

	var out []Notification
	for _, ev := range evs {
		cat, ok := CategoryOf(ev.Kind)
		if !ok || !cat.Enabled(cfg) {
			continue
		}

		key := debounceKey{identity: ev.Identity, category: cat}
		if last, seen := p.lastSent[key]; seen && window > 0 && now.Sub(last) < window {
			continue
		}
		p.lastSent[key] = now

		title, body := Text(cat, ev, cfg.LowBatteryThreshold)
		out = append(out, Notification{
			Category: cat,
			Identity: ev.Identity,
			Title:    title,
			Body:     body,
			Event:    ev,
			At:       now,
		})
	}
	return out
}

func (p *Policy) expire(now time.Time, window time.Duration) {
	for k, at := range p.lastSent {
		if now.Sub(at) >= window {
			delete(p.lastSent, k)
		}
	}
}

// Text returns the title and body shown for an event of category c.
func Text(c Category, ev events.Event, threshold int) (title, body string) {
	name := ev.Device.Label()
	switch c {
	case CategoryLowBattery:
		return fmt.Sprintf("Bluetooth battery below %d%%", threshold),
			fmt.Sprintf("%s: %s", name, ev.Device.Battery)
	case CategoryDisconnected:
		return "Bluetooth device disconnected", "Device name: " + name
	case CategoryReconnected:
		return "Bluetooth device reconnected", "Device name: " + name
	case CategoryAdded:
		return "New Bluetooth device added", "Device name: " + name
	case CategoryRemoved:
		return "Bluetooth device removed", "Device name: " + name
	}
	return c.String(), name
}
