package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"

	"github.com/nerrad567/bluegauge/internal/events"
)

type recordingNotifier struct {
	name string
	got  []Notification
	err  error
}

func (r *recordingNotifier) Name() string { return r.name }

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.got = append(r.got, n)
	return r.err
}

type countingLogger struct {
	noopLogger
	warns int
}

func (c *countingLogger) Warn(string, ...any) { c.warns++ }

func batch(n int) []Notification {
	out := make([]Notification, n)
	for i := range out {
		out[i] = Notification{Category: CategoryDisconnected, Identity: string(rune('A' + i))}
	}
	return out
}

func TestDispatch_RateCap(t *testing.T) {
	rec := &recordingNotifier{name: "rec"}
	log := &countingLogger{}
	d := NewDispatcher(3, log, rec)

	if sent := d.Dispatch(context.Background(), batch(5)); sent != 3 {
		t.Errorf("Dispatch() sent %d, want 3", sent)
	}
	if len(rec.got) != 3 || rec.got[0].Identity != "A" || rec.got[2].Identity != "C" {
		t.Errorf("delivered %v, want first three in order", rec.got)
	}
	if log.warns != 2 {
		t.Errorf("warnings = %d, want 2 drops", log.warns)
	}
}

func TestDispatch_Unlimited(t *testing.T) {
	rec := &recordingNotifier{name: "rec"}
	d := NewDispatcher(0, nil, rec)
	if sent := d.Dispatch(context.Background(), batch(20)); sent != 20 {
		t.Errorf("Dispatch() sent %d, want 20", sent)
	}
}

func TestDispatch_SetRateStartsFull(t *testing.T) {
	rec := &recordingNotifier{name: "rec"}
	d := NewDispatcher(0, nil, rec)
	d.SetRate(2)
	if sent := d.Dispatch(context.Background(), batch(4)); sent != 2 {
		t.Errorf("Dispatch() after SetRate sent %d, want 2", sent)
	}
}

func TestDispatch_NotifierErrorDoesNotStopOthers(t *testing.T) {
	bad := &recordingNotifier{name: "bad", err: errors.New("daemon gone")}
	good := &recordingNotifier{name: "good"}
	log := &countingLogger{}
	d := NewDispatcher(0, log, bad, good)

	d.Dispatch(context.Background(), batch(2))
	if len(good.got) != 2 {
		t.Errorf("good notifier got %d, want 2", len(good.got))
	}
	if log.warns != 2 {
		t.Errorf("warnings = %d, want 2", log.warns)
	}
}

func TestDispatch_CancelledContext(t *testing.T) {
	rec := &recordingNotifier{name: "rec"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if sent := NewDispatcher(0, nil, rec).Dispatch(ctx, batch(3)); sent != 0 {
		t.Errorf("Dispatch() on cancelled ctx sent %d", sent)
	}
}

type fakeBusObject struct {
	dbus.BusObject
	calls [][]interface{}
	next  uint32
}

func (f *fakeBusObject) CallWithContext(_ context.Context, method string, _ dbus.Flags, args ...interface{}) *dbus.Call {
	f.calls = append(f.calls, args)
	f.next++
	return &dbus.Call{Method: method, Body: []interface{}{f.next}}
}

func TestDesktop_ReplacesPerDeviceAndCategory(t *testing.T) {
	obj := &fakeBusObject{}
	d := newDesktop(obj)
	ctx := context.Background()

	n := Notification{Category: CategoryLowBattery, Identity: "A", Title: "t", Body: "b"}
	for range 2 {
		if err := d.Notify(ctx, n); err != nil {
			t.Fatalf("Notify() error = %v", err)
		}
	}
	if err := d.Notify(ctx, Notification{Category: CategoryAdded, Identity: "B"}); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if err := d.Notify(ctx, Notification{Category: CategoryLowBattery, Identity: "B"}); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	if len(obj.calls) != 4 {
		t.Fatalf("calls = %d, want 4", len(obj.calls))
	}
	if obj.calls[3][1] != uint32(0) {
		t.Errorf("low battery for B replaced bubble %v, want a new bubble next to the added one", obj.calls[3][1])
	}
	if obj.calls[0][0] != appName {
		t.Errorf("app name = %v", obj.calls[0][0])
	}
	if obj.calls[0][1] != uint32(0) || obj.calls[1][1] != uint32(1) || obj.calls[2][1] != uint32(0) {
		t.Errorf("replaces ids = %v %v %v, want 0 1 0", obj.calls[0][1], obj.calls[1][1], obj.calls[2][1])
	}
	if obj.calls[0][2] != "battery-caution" {
		t.Errorf("icon = %v", obj.calls[0][2])
	}
	hints := obj.calls[0][6].(map[string]dbus.Variant)
	if hints["urgency"].Value() != urgencyCritical {
		t.Errorf("urgency = %v, want critical", hints["urgency"].Value())
	}
}

type errBusObject struct{ dbus.BusObject }

func (errBusObject) CallWithContext(context.Context, string, dbus.Flags, ...interface{}) *dbus.Call {
	return &dbus.Call{Err: errors.New("no daemon")}
}

func TestDesktop_CallError(t *testing.T) {
	if err := newDesktop(errBusObject{}).Notify(context.Background(), Notification{}); err == nil {
		t.Error("Notify() error = nil, want failure")
	}
}

type capturePublisher struct {
	topic    string
	payload  []byte
	retained bool
}

func (c *capturePublisher) Publish(topic string, payload []byte, _ byte, retained bool) error {
	c.topic, c.payload, c.retained = topic, payload, retained
	return nil
}

func TestMQTTNotifier(t *testing.T) {
	pub := &capturePublisher{}
	n := NewPolicy().Filter(
		[]events.Event{ev(events.LowBatteryCrossing, "AA:BB", "Mouse", 12)},
		allOn(), t0,
	)[0]

	if err := NewMQTTNotifier(pub, 1).Notify(context.Background(), n); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if pub.topic != "bluegauge/notification/low_battery" || pub.retained {
		t.Errorf("published to %q retained=%v", pub.topic, pub.retained)
	}

	var body map[string]any
	if err := json.Unmarshal(pub.payload, &body); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if body["identity"] != "AA:BB" || body["battery"] != float64(12) {
		t.Errorf("payload = %v", body)
	}
}
