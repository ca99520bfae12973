package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	notificationsService   = "org.freedesktop.Notifications"
	notificationsPath      = "/org/freedesktop/Notifications"
	notificationsInterface = "org.freedesktop.Notifications"

	appName = "BlueGauge"

	urgencyNormal   byte = 1
	urgencyCritical byte = 2
)

// Desktop shows notifications through the freedesktop notification daemon
// on the session bus. A repeat of the same category for the same device
// reuses its previous bubble instead of stacking a new one.
type Desktop struct {
	obj dbus.BusObject

	mu       sync.Mutex
	replaces map[debounceKey]uint32
}

// NewDesktop talks to the notification daemon over conn, normally the
// session bus.
func NewDesktop(conn *dbus.Conn) *Desktop {
	return newDesktop(conn.Object(notificationsService, notificationsPath))
}

func newDesktop(obj dbus.BusObject) *Desktop {
	return &Desktop{obj: obj, replaces: make(map[debounceKey]uint32)}
}

func (*Desktop) Name() string { return "desktop" }

func (d *Desktop) Notify(ctx context.Context, n Notification) error {
	key := debounceKey{identity: n.Identity, category: n.Category}
	d.mu.Lock()
	replaces := d.replaces[key]
	d.mu.Unlock()

	call := d.obj.CallWithContext(ctx, notificationsInterface+".Notify", 0,
		appName,
		replaces,
		desktopIcon(n.Category),
		n.Title,
		n.Body,
		[]string{},
		desktopHints(n.Category),
		int32(-1),
	)
	if call.Err != nil {
		return fmt.Errorf("desktop notification: %w", call.Err)
	}

	var id uint32
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("desktop notification reply: %w", err)
	}

	d.mu.Lock()
	d.replaces[key] = id
	d.mu.Unlock()
	return nil
}

func desktopIcon(c Category) string {
	switch c {
	case CategoryLowBattery:
		return "battery-caution"
	case CategoryDisconnected, CategoryRemoved:
		return "bluetooth-disabled"
	default:
		return "bluetooth-active"
	}
}

func desktopHints(c Category) map[string]dbus.Variant {
	urgency := urgencyNormal
	category := "device"
	switch c {
	case CategoryLowBattery:
		urgency = urgencyCritical
		category = "device.error"
	case CategoryAdded, CategoryReconnected:
		category = "device.added"
	case CategoryRemoved, CategoryDisconnected:
		category = "device.removed"
	}
	return map[string]dbus.Variant{
		"urgency":       dbus.MakeVariant(urgency),
		"category":      dbus.MakeVariant(category),
		"desktop-entry": dbus.MakeVariant("bluegauge"),
	}
}
