package source

import (
	"context"
	"fmt"
	"math"
	"net"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/nerrad567/bluegauge/internal/device"
)

const (
	upowerService         = "org.freedesktop.UPower"
	upowerPath            = "/org/freedesktop/UPower"
	upowerInterface       = "org.freedesktop.UPower"
	upowerDeviceInterface = "org.freedesktop.UPower.Device"
	propertiesGetAll      = "org.freedesktop.DBus.Properties.GetAll"
)

// UPower reports Bluetooth HID peripherals (mice, keyboards, game pads)
// whose batteries the kernel exposes through the power-supply class. It is
// the PnP backend: these devices often never show a Battery1 in BlueZ.
type UPower struct {
	conn   objectSource
	now    func() time.Time
	logger Logger
}

// objectSource is the part of *dbus.Conn UPower needs.
type objectSource interface {
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
}

func NewUPower(conn *dbus.Conn, logger Logger) *UPower {
	return newUPower(conn, logger)
}

func newUPower(conn objectSource, logger Logger) *UPower {
	if logger == nil {
		logger = noopLogger{}
	}
	return &UPower{conn: conn, now: time.Now, logger: logger}
}

func (*UPower) Name() string { return "upower" }

func (*UPower) Backends() device.BackendSet { return device.SetOf(device.BackendPnP) }

func (u *UPower) Poll(ctx context.Context) ([]DeviceRecord, error) {
	var paths []dbus.ObjectPath
	call := u.conn.Object(upowerService, upowerPath).CallWithContext(ctx, upowerInterface+".EnumerateDevices", 0)
	if call.Err != nil {
		return nil, fmt.Errorf("upower EnumerateDevices: %w", call.Err)
	}
	if err := call.Store(&paths); err != nil {
		return nil, fmt.Errorf("upower EnumerateDevices reply: %w", err)
	}

	now := u.now()
	var records []DeviceRecord
	for _, p := range paths {
		var props map[string]dbus.Variant
		call := u.conn.Object(upowerService, p).CallWithContext(ctx, propertiesGetAll, 0, upowerDeviceInterface)
		if call.Err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Devices can vanish between the two calls.
			u.logger.Debug("upower device skipped", "path", string(p), "error", call.Err)
			continue
		}
		if err := call.Store(&props); err != nil {
			u.logger.Debug("upower device skipped", "path", string(p), "error", err)
			continue
		}
		if rec, ok := upowerRecord(props, now); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// upowerRecord keeps only Bluetooth peripherals: the laptop's own battery
// and line power are power supplies, and wired devices have no bluez or
// hid path.
func upowerRecord(props map[string]dbus.Variant, at time.Time) (DeviceRecord, bool) {
	if boolProp(props, "PowerSupply") {
		return DeviceRecord{}, false
	}
	native := stringProp(props, "NativePath")
	serial := stringProp(props, "Serial")
	if !isBluetoothNativePath(native, serial) {
		return DeviceRecord{}, false
	}

	id := serial
	if id == "" {
		id = native
	}
	rec := DeviceRecord{
		SourceID:    id,
		Backend:     device.BackendPnP,
		DisplayName: stringProp(props, "Model"),
		Battery:     device.BatteryUnknown,
		Connected:   boolProp(props, "IsPresent"),
		ObservedAt:  at,
	}
	if v, ok := props["Percentage"]; ok {
		if pct, ok := v.Value().(float64); ok {
			rec.Battery = device.BatteryPercent(int(math.Round(pct)))
		}
	}
	return rec, true
}

func isBluetoothNativePath(native, serial string) bool {
	if strings.HasPrefix(native, "/org/bluez/") {
		return true
	}
	if !strings.HasPrefix(native, "hid-") {
		return false
	}
	_, err := net.ParseMAC(strings.TrimSpace(serial))
	return err == nil
}
