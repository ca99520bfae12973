package source

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/nerrad567/bluegauge/internal/device"
)

const (
	bluezService           = "org.bluez"
	bluezDeviceInterface   = "org.bluez.Device1"
	bluezBatteryInterface  = "org.bluez.Battery1"
	objectManagerInterface = "org.freedesktop.DBus.ObjectManager"
)

type managedObjects = map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// BlueZ reports paired devices known to the BlueZ daemon. Batteries come
// from the Battery1 interface, which BlueZ populates from the GATT battery
// service for LE devices and from HFP/AVRCP reports for classic ones.
type BlueZ struct {
	obj dbus.BusObject
	now func() time.Time
}

// NewBlueZ polls BlueZ over conn, normally the system bus.
func NewBlueZ(conn *dbus.Conn) *BlueZ {
	return newBlueZ(conn.Object(bluezService, "/"))
}

func newBlueZ(obj dbus.BusObject) *BlueZ {
	return &BlueZ{obj: obj, now: time.Now}
}

func (*BlueZ) Name() string { return "bluez" }

func (*BlueZ) Backends() device.BackendSet {
	return device.SetOf(device.BackendBLE, device.BackendClassic)
}

func (b *BlueZ) Poll(ctx context.Context) ([]DeviceRecord, error) {
	var objects managedObjects
	call := b.obj.CallWithContext(ctx, objectManagerInterface+".GetManagedObjects", 0)
	if call.Err != nil {
		return nil, fmt.Errorf("bluez GetManagedObjects: %w", call.Err)
	}
	if err := call.Store(&objects); err != nil {
		return nil, fmt.Errorf("bluez GetManagedObjects reply: %w", err)
	}

	paths := make([]dbus.ObjectPath, 0, len(objects))
	for p := range objects {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })

	now := b.now()
	var records []DeviceRecord
	for _, p := range paths {
		ifaces := objects[p]
		props, ok := ifaces[bluezDeviceInterface]
		if !ok {
			continue
		}
		rec := bluezRecord(props, ifaces[bluezBatteryInterface], now)
		if !boolProp(props, "Paired") {
			// Unpaired objects are reported so a device that was unpaired
			// leaves the registry now. Addresses never seen are ignored by
			// the merge.
			if rec.SourceID == "" {
				continue
			}
			rec.Removed = true
			rec.Connected = false
			rec.Battery = device.BatteryUnknown
		}
		records = append(records, rec)
	}
	return records, nil
}

func bluezRecord(props, battery map[string]dbus.Variant, at time.Time) DeviceRecord {
	name := stringProp(props, "Alias")
	if name == "" {
		name = stringProp(props, "Name")
	}

	// BR/EDR devices carry a Class of Device; LE-only devices do not.
	backend := device.BackendBLE
	if _, ok := props["Class"]; ok {
		backend = device.BackendClassic
	}

	rec := DeviceRecord{
		SourceID:    stringProp(props, "Address"),
		Backend:     backend,
		DisplayName: name,
		Battery:     device.BatteryUnknown,
		Connected:   boolProp(props, "Connected"),
		ObservedAt:  at,
	}
	if v, ok := battery["Percentage"]; ok {
		if pct, ok := v.Value().(byte); ok {
			rec.Battery = device.BatteryPercent(int(pct))
		}
	}
	return rec
}

func stringProp(props map[string]dbus.Variant, key string) string {
	if v, ok := props[key]; ok {
		if s, ok := v.Value().(string); ok {
			return s
		}
	}
	return ""
}

func boolProp(props map[string]dbus.Variant, key string) bool {
	if v, ok := props[key]; ok {
		if b, ok := v.Value().(bool); ok {
			return b
		}
	}
	return false
}
