package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/bluegauge/internal/device"
	"github.com/nerrad567/bluegauge/internal/events"
	"github.com/nerrad567/bluegauge/internal/infrastructure/influxdb"
	"github.com/nerrad567/bluegauge/internal/infrastructure/mqtt"
)

// Sink receives every completed cycle after the presentation is published.
// Sinks run on the scheduler goroutine in registration order; an error is
// logged and does not stop later sinks.
type Sink interface {
	Name() string
	Apply(ctx context.Context, c Cycle) error
}

// RegistrySink persists the registry and appends battery history whenever
// a device's reading or link changes.
type RegistrySink struct {
	registry *device.Registry
	history  device.BatteryHistory
}

// NewRegistrySink returns a sink writing to the registry's repository.
// history may be nil.
func NewRegistrySink(registry *device.Registry, history device.BatteryHistory) *RegistrySink {
	return &RegistrySink{registry: registry, history: history}
}

func (*RegistrySink) Name() string { return "registry" }

func (r *RegistrySink) Apply(ctx context.Context, c Cycle) error {
	if c.Snapshot == nil || c.Snapshot.Equal(c.Previous) {
		return nil
	}
	var errs []error
	if err := r.registry.Persist(ctx, c.Snapshot); err != nil && !errors.Is(err, device.ErrNoRepository) {
		errs = append(errs, err)
	}
	if r.history == nil {
		return errors.Join(errs...)
	}

	for _, d := range c.Snapshot.Devices() {
		if !d.Battery.Known() {
			continue
		}
		before, ok := c.Previous.Get(d.Identity)
		if ok && before.Battery == d.Battery && before.State == d.State {
			continue
		}
		err := r.history.Record(ctx, device.BatteryReading{
			Identity:   d.Identity,
			Battery:    d.Battery,
			Connected:  d.Connected(),
			RecordedAt: c.At,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("recording history for %s: %w", d.Identity, err))
		}
	}
	return errors.Join(errs...)
}

// PointWriter is the subset of the InfluxDB client the metrics sink uses.
type PointWriter interface {
	WriteBatteryLevel(b influxdb.BatteryLevel, at time.Time)
	WriteDeviceEvent(e influxdb.DeviceEvent, at time.Time)
}

// InfluxSink writes one battery_level point per device with a known level
// and one device_event point per event.
type InfluxSink struct {
	writer PointWriter
}

func NewInfluxSink(w PointWriter) *InfluxSink { return &InfluxSink{writer: w} }

func (*InfluxSink) Name() string { return "influxdb" }

func (s *InfluxSink) Apply(_ context.Context, c Cycle) error {
	if c.Snapshot == nil || c.Snapshot == c.Previous {
		return nil
	}
	for _, d := range c.Snapshot.Devices() {
		level, ok := d.Battery.Level()
		if !ok {
			continue
		}
		s.writer.WriteBatteryLevel(influxdb.BatteryLevel{
			Identity:  d.Identity,
			Name:      d.Label(),
			Backends:  d.Backends.String(),
			Percent:   level,
			Connected: d.Connected(),
		}, c.At)
	}
	for _, ev := range c.Events {
		pct := -1
		if level, ok := ev.Device.Battery.Level(); ok {
			pct = level
		}
		s.writer.WriteDeviceEvent(influxdb.DeviceEvent{
			Identity: ev.Identity,
			Name:     ev.Device.Label(),
			Kind:     ev.Kind.String(),
			Percent:  pct,
		}, c.At)
	}
	return nil
}

// MessagePublisher is the subset of the MQTT client the state sink uses.
type MessagePublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTSink mirrors device state and the tray presentation to MQTT. The
// first cycle publishes every device; later cycles publish only devices
// with events. A removed device's retained state is cleared with an empty
// payload.
type MQTTSink struct {
	pub    MessagePublisher
	qos    byte
	topics mqtt.Topics

	// primed is set once every device's state has been published.
	primed      bool
	lastTooltip string
	lastIcon    []byte
}

func NewMQTTSink(pub MessagePublisher, qos byte) *MQTTSink {
	return &MQTTSink{pub: pub, qos: qos}
}

func (*MQTTSink) Name() string { return "mqtt" }

type deviceState struct {
	Identity  string         `json:"identity"`
	Name      string         `json:"name"`
	Battery   device.Battery `json:"battery"`
	Connected bool           `json:"connected"`
	Backends  string         `json:"backends"`
	LastSeen  string         `json:"last_seen"`
	Low       bool           `json:"low_battery"`
}

type eventMessage struct {
	Kind            string         `json:"kind"`
	Identity        string         `json:"identity"`
	Name            string         `json:"name"`
	Battery         device.Battery `json:"battery"`
	PreviousBattery device.Battery `json:"previous_battery"`
	At              string         `json:"at"`
}

func (s *MQTTSink) Apply(_ context.Context, c Cycle) error {
	var errs []error
	publish := func(topic string, payload []byte, retained bool) {
		if err := s.pub.Publish(topic, payload, s.qos, retained); err != nil {
			errs = append(errs, err)
		}
	}

	changed := make(map[string]bool)
	for _, ev := range c.Events {
		changed[ev.Identity] = ev.Kind != events.Removed
	}
	for _, d := range c.Snapshot.Devices() {
		if s.primed && !changed[d.Identity] {
			continue
		}
		payload, err := json.Marshal(stateOf(d))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		publish(s.topics.DeviceState(d.Identity), payload, true)
	}
	s.primed = true

	for _, ev := range c.Events {
		if ev.Kind == events.Removed {
			publish(s.topics.DeviceState(ev.Identity), []byte{}, true)
		}
		payload, err := json.Marshal(eventMessage{
			Kind:            ev.Kind.String(),
			Identity:        ev.Identity,
			Name:            ev.Device.Label(),
			Battery:         ev.Device.Battery,
			PreviousBattery: ev.PreviousBattery,
			At:              c.At.UTC().Format(time.RFC3339),
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		publish(s.topics.Event(ev.Kind.String()), payload, false)
	}

	if p := c.Presentation; p != nil {
		if p.Tooltip != s.lastTooltip {
			publish(s.topics.TrayTooltip(), []byte(p.Tooltip), true)
			s.lastTooltip = p.Tooltip
		}
		icon, err := p.PNG()
		switch {
		case err != nil:
			errs = append(errs, err)
		case !bytes.Equal(icon, s.lastIcon):
			publish(s.topics.TrayIcon(), icon, true)
			s.lastIcon = icon
		}
	}
	return errors.Join(errs...)
}

func stateOf(d device.Device) deviceState {
	return deviceState{
		Identity:  d.Identity,
		Name:      d.Label(),
		Battery:   d.Battery,
		Connected: d.Connected(),
		Backends:  d.Backends.String(),
		LastSeen:  d.LastSeenAt.UTC().Format(time.RFC3339),
		Low:       d.LowBatteryAcknowledged,
	}
}
