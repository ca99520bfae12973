package notify

import (
	"slices"
	"testing"
	"time"

	"github.com/nerrad567/bluegauge/internal/device"
	"github.com/nerrad567/bluegauge/internal/events"
	"github.com/nerrad567/bluegauge/internal/infrastructure/config"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func allOn() config.NotificationConfig {
	return config.NotificationConfig{
		NotifyLowBattery:    true,
		NotifyReconnect:     true,
		NotifyDisconnect:    true,
		NotifyAdded:         true,
		NotifyRemoved:       true,
		LowBatteryThreshold: 20,
		DebounceSeconds:     30,
	}
}

func ev(kind events.Kind, id, name string, battery int) events.Event {
	return events.Event{
		Kind:     kind,
		Identity: id,
		Device: device.Device{
			Identity:    id,
			DisplayName: name,
			Battery:     device.BatteryPercent(battery),
		},
	}
}

func categories(ns []Notification) []Category {
	out := make([]Category, len(ns))
	for i, n := range ns {
		out[i] = n.Category
	}
	return out
}

func TestFilter_OnlyEnabledCategories(t *testing.T) {
	cfg := config.NotificationConfig{NotifyAdded: true, LowBatteryThreshold: 20}
	evs := []events.Event{
		ev(events.Added, "B", "Headset", 15),
		ev(events.LowBatteryCrossing, "B", "Headset", 15),
	}

	got := NewPolicy().Filter(evs, cfg, t0)
	if len(got) != 1 {
		t.Fatalf("Filter() returned %d notifications, want 1", len(got))
	}
	if got[0].Category != CategoryAdded {
		t.Errorf("Category = %v, want added", got[0].Category)
	}
	if got[0].Title != "New Bluetooth device added" || got[0].Body != "Device name: Headset" {
		t.Errorf("text = %q / %q", got[0].Title, got[0].Body)
	}
}

func TestFilter_MuteSuppressesEverything(t *testing.T) {
	cfg := allOn()
	cfg.MuteAll = true
	p := NewPolicy()

	evs := []events.Event{
		ev(events.Disconnected, "A", "Mouse", 40),
		ev(events.LowBatteryCrossing, "B", "Pad", 5),
	}
	if got := p.Filter(evs, cfg, t0); len(got) != 0 {
		t.Errorf("muted Filter() = %v, want nothing", got)
	}

	// Muted cycles must not consume the debounce window.
	cfg.MuteAll = false
	if got := p.Filter(evs, cfg, t0.Add(time.Second)); len(got) != 2 {
		t.Errorf("Filter() after unmute returned %d, want 2", len(got))
	}
}

func TestFilter_PreservesOrder(t *testing.T) {
	evs := []events.Event{
		ev(events.Reconnected, "A", "Mouse", 40),
		ev(events.BatteryChanged, "A", "Mouse", 40),
		ev(events.Added, "C", "Pad", 90),
		ev(events.Removed, "D", "Old", 50),
		ev(events.LowBatteryRecovered, "E", "Pen", 80),
		ev(events.Disconnected, "F", "Keys", 60),
	}

	got := categories(NewPolicy().Filter(evs, allOn(), t0))
	want := []Category{CategoryReconnected, CategoryAdded, CategoryRemoved, CategoryDisconnected}
	if !slices.Equal(got, want) {
		t.Errorf("categories = %v, want %v", got, want)
	}
}

func TestFilter_Debounce(t *testing.T) {
	p := NewPolicy()
	cfg := allOn()
	flap := []events.Event{ev(events.Disconnected, "A", "Mouse", 40)}

	if got := p.Filter(flap, cfg, t0); len(got) != 1 {
		t.Fatalf("first disconnect: %d notifications, want 1", len(got))
	}
	if got := p.Filter(flap, cfg, t0.Add(10*time.Second)); len(got) != 0 {
		t.Errorf("disconnect within window: %d notifications, want 0", len(got))
	}
	// Other categories and other devices are debounced independently.
	other := []events.Event{
		ev(events.Reconnected, "A", "Mouse", 40),
		ev(events.Disconnected, "B", "Keys", 40),
	}
	if got := p.Filter(other, cfg, t0.Add(11*time.Second)); len(got) != 2 {
		t.Errorf("independent keys: %d notifications, want 2", len(got))
	}
	if got := p.Filter(flap, cfg, t0.Add(31*time.Second)); len(got) != 1 {
		t.Errorf("disconnect after window: %d notifications, want 1", len(got))
	}
}

func TestFilter_ZeroDebounce(t *testing.T) {
	p := NewPolicy()
	cfg := allOn()
	cfg.DebounceSeconds = 0
	flap := []events.Event{ev(events.Disconnected, "A", "Mouse", 40)}

	for i := range 3 {
		if got := p.Filter(flap, cfg, t0); len(got) != 1 {
			t.Errorf("call %d: %d notifications, want 1", i, len(got))
		}
	}
}

func TestText(t *testing.T) {
	tests := []struct {
		cat       Category
		ev        events.Event
		wantTitle string
		wantBody  string
	}{
		{CategoryLowBattery, ev(events.LowBatteryCrossing, "A", "Mouse", 15), "Bluetooth battery below 20%", "Mouse: 15%"},
		{CategoryDisconnected, ev(events.Disconnected, "A", "Mouse", 15), "Bluetooth device disconnected", "Device name: Mouse"},
		{CategoryReconnected, ev(events.Reconnected, "A", "", 15), "Bluetooth device reconnected", "Device name: A"},
		{CategoryRemoved, ev(events.Removed, "A", "Mouse", 15), "Bluetooth device removed", "Device name: Mouse"},
	}
	for _, tt := range tests {
		title, body := Text(tt.cat, tt.ev, 20)
		if title != tt.wantTitle || body != tt.wantBody {
			t.Errorf("Text(%v) = %q / %q, want %q / %q", tt.cat, title, body, tt.wantTitle, tt.wantBody)
		}
	}
}

func TestCategoryOf(t *testing.T) {
	for _, k := range []events.Kind{events.BatteryChanged, events.LowBatteryRecovered} {
		if _, ok := CategoryOf(k); ok {
			t.Errorf("CategoryOf(%v) should not map to a category", k)
		}
	}
	if c, ok := CategoryOf(events.LowBatteryCrossing); !ok || c != CategoryLowBattery {
		t.Errorf("CategoryOf(low_battery) = %v, %v", c, ok)
	}
}
