package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const (
	measurementBattery = "battery_level"
	measurementEvent   = "device_event"
)

// BatteryLevel is one device's charge at a point in time.
type BatteryLevel struct {
	Identity  string
	Name      string
	Backends  string
	Percent   int
	Connected bool
}

// DeviceEvent is a registry change worth annotating on a graph.
type DeviceEvent struct {
	Identity string
	Name     string
	Kind     string
	Percent  int // -1 when unknown
}

// WriteBatteryLevel queues a battery_level point. No-op when disconnected.
func (c *Client) WriteBatteryLevel(b BatteryLevel, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(batteryPoint(b, at))
}

// WriteDeviceEvent queues a device_event point. No-op when disconnected.
func (c *Client) WriteDeviceEvent(e DeviceEvent, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(eventPoint(e, at))
}

func batteryPoint(b BatteryLevel, at time.Time) *write.Point {
	return write.NewPoint(
		measurementBattery,
		map[string]string{
			"identity": b.Identity,
			"name":     b.Name,
			"backends": b.Backends,
		},
		map[string]interface{}{
			"percent":   int64(b.Percent),
			"connected": b.Connected,
		},
		at,
	)
}

func eventPoint(e DeviceEvent, at time.Time) *write.Point {
	fields := map[string]interface{}{"count": int64(1)}
	if e.Percent >= 0 {
		fields["percent"] = int64(e.Percent)
	}
	return write.NewPoint(
		measurementEvent,
		map[string]string{
			"identity": e.Identity,
			"name":     e.Name,
			"kind":     e.Kind,
		},
		fields,
		at,
	)
}
