package source

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/sony/gobreaker/v2"

	"github.com/nerrad567/bluegauge/internal/device"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeAdapter returns canned results and counts calls.
type fakeAdapter struct {
	name     string
	backends device.BackendSet
	records  []DeviceRecord
	err      error
	block    bool
	calls    atomic.Int32
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Backends() device.BackendSet { return f.backends }

func (f *fakeAdapter) Poll(ctx context.Context) ([]DeviceRecord, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.records, f.err
}

func ids(recs []DeviceRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.SourceID
	}
	return out
}

func TestMulti_AllHealthy(t *testing.T) {
	ble := &fakeAdapter{name: "bluez", backends: device.SetOf(device.BackendBLE), records: []DeviceRecord{{SourceID: "A"}}}
	pnp := &fakeAdapter{name: "upower", backends: device.SetOf(device.BackendPnP), records: []DeviceRecord{{SourceID: "B"}}}
	m := NewMulti(ble, pnp)

	recs, err := m.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if got := ids(recs); !slices.Equal(got, []string{"A", "B"}) {
		t.Errorf("records = %v, want adapter order", got)
	}
	if m.Name() != "bluez+upower" {
		t.Errorf("Name() = %q", m.Name())
	}
	if m.Backends() != device.SetOf(device.BackendBLE, device.BackendPnP) {
		t.Errorf("Backends() = %v", m.Backends())
	}
}

func TestMulti_Partial(t *testing.T) {
	ble := &fakeAdapter{name: "bluez", backends: device.SetOf(device.BackendBLE, device.BackendClassic), err: errors.New("bluez down")}
	pnp := &fakeAdapter{name: "upower", backends: device.SetOf(device.BackendPnP), records: []DeviceRecord{{SourceID: "B"}}}

	recs, err := NewMulti(ble, pnp).Poll(context.Background())
	var partial *PartialError
	if !errors.As(err, &partial) {
		t.Fatalf("Poll() error = %v, want *PartialError", err)
	}
	if partial.Failed != device.SetOf(device.BackendBLE, device.BackendClassic) {
		t.Errorf("Failed = %v", partial.Failed)
	}
	if got := ids(recs); !slices.Equal(got, []string{"B"}) {
		t.Errorf("records = %v, want healthy adapter's", got)
	}
}

func TestMulti_AllFailed(t *testing.T) {
	a := &fakeAdapter{name: "a", err: errors.New("x")}
	b := &fakeAdapter{name: "b", err: errors.New("y")}

	recs, err := NewMulti(a, b).Poll(context.Background())
	var pollErr *PollError
	if !errors.As(err, &pollErr) {
		t.Fatalf("Poll() error = %v, want *PollError", err)
	}
	if recs != nil {
		t.Errorf("records = %v, want nil", recs)
	}
}

func TestPollWithTimeout(t *testing.T) {
	slow := &fakeAdapter{name: "slow", block: true}
	_, err := PollWithTimeout(context.Background(), slow, 20*time.Millisecond)
	if !errors.Is(err, ErrPollTimeout) {
		t.Errorf("slow poll error = %v, want ErrPollTimeout", err)
	}
	var pollErr *PollError
	if !errors.As(err, &pollErr) || pollErr.Source != "slow" {
		t.Errorf("error %v should be a PollError from slow", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := PollWithTimeout(ctx, slow, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled poll error = %v, want context.Canceled", err)
	}

	broken := &fakeAdapter{name: "broken", err: errors.New("boom")}
	if _, err := PollWithTimeout(context.Background(), broken, time.Second); !errors.As(err, &pollErr) {
		t.Errorf("plain error %v should be wrapped in PollError", err)
	}
}

func TestPollWithTimeout_PartialKeepsRecords(t *testing.T) {
	slow := &fakeAdapter{name: "bluez", backends: device.SetOf(device.BackendBLE), block: true}
	fast := &fakeAdapter{name: "upower", backends: device.SetOf(device.BackendPnP), records: []DeviceRecord{{SourceID: "B"}}}

	recs, err := PollWithTimeout(context.Background(), NewMulti(slow, fast), 20*time.Millisecond)
	var partial *PartialError
	if !errors.As(err, &partial) {
		t.Fatalf("error = %v, want *PartialError", err)
	}
	if len(recs) != 1 || !partial.Failed.Has(device.BackendBLE) {
		t.Errorf("records=%v failed=%v", recs, partial.Failed)
	}
}

// deafAdapter ignores its context and answers only once released.
type deafAdapter struct {
	name     string
	backends device.BackendSet
	release  chan struct{}
}

func (d *deafAdapter) Name() string { return d.name }

func (d *deafAdapter) Backends() device.BackendSet { return d.backends }

func (d *deafAdapter) Poll(context.Context) ([]DeviceRecord, error) {
	<-d.release
	return []DeviceRecord{{SourceID: "late"}}, nil
}

func TestPollWithTimeout_AdapterIgnoringContext(t *testing.T) {
	deaf := &deafAdapter{name: "deaf", release: make(chan struct{})}
	t.Cleanup(func() { close(deaf.release) })

	start := time.Now()
	recs, err := PollWithTimeout(context.Background(), deaf, 20*time.Millisecond)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("PollWithTimeout() took %v, want about the 20ms bound", elapsed)
	}
	if !errors.Is(err, ErrPollTimeout) {
		t.Errorf("error = %v, want ErrPollTimeout", err)
	}
	if recs != nil {
		t.Errorf("records = %v, want none from an overrun poll", recs)
	}
}

func TestPollWithTimeout_MultiBoundsEachAdapter(t *testing.T) {
	deaf := &deafAdapter{name: "bluez", backends: device.SetOf(device.BackendBLE), release: make(chan struct{})}
	t.Cleanup(func() { close(deaf.release) })
	fast := &fakeAdapter{name: "upower", backends: device.SetOf(device.BackendPnP), records: []DeviceRecord{{SourceID: "B"}}}

	start := time.Now()
	recs, err := PollWithTimeout(context.Background(), NewMulti(deaf, fast), 20*time.Millisecond)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("PollWithTimeout() took %v, want about the 20ms bound", elapsed)
	}
	var partial *PartialError
	if !errors.As(err, &partial) {
		t.Fatalf("error = %v, want *PartialError", err)
	}
	if !errors.Is(err, ErrPollTimeout) {
		t.Errorf("error = %v, should carry ErrPollTimeout for bluez", err)
	}
	if got := ids(recs); !slices.Equal(got, []string{"B"}) {
		t.Errorf("records = %v, want only upower's", got)
	}
	if !partial.Failed.Has(device.BackendBLE) || partial.Failed.Has(device.BackendPnP) {
		t.Errorf("Failed = %v, want only ble", partial.Failed)
	}
}

func TestMulti_PollReleasedOnCancel(t *testing.T) {
	deaf := &deafAdapter{name: "bluez", release: make(chan struct{})}
	t.Cleanup(func() { close(deaf.release) })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := NewMulti(deaf).Poll(ctx)
		done <- err
	}()
	select {
	case err := <-done:
		if err == nil {
			t.Error("Poll() error = nil after the context expired")
		}
	case <-time.After(time.Second):
		t.Fatal("Multi.Poll() blocked on an adapter ignoring its context")
	}
}

func TestBreaker_OpensAfterFailures(t *testing.T) {
	inner := &fakeAdapter{name: "bluez", backends: device.SetOf(device.BackendBLE), err: errors.New("no daemon")}
	b := NewBreaker(inner, 2, time.Hour, nil)

	for range 2 {
		if _, err := b.Poll(context.Background()); err == nil {
			t.Fatal("Poll() error = nil")
		}
	}
	if b.State() != gobreaker.StateOpen {
		t.Fatalf("State() = %v, want open", b.State())
	}

	_, err := b.Poll(context.Background())
	if !errors.Is(err, ErrBackendOpen) {
		t.Errorf("open breaker error = %v, want ErrBackendOpen", err)
	}
	if inner.calls.Load() != 2 {
		t.Errorf("inner called %d times, want 2", inner.calls.Load())
	}
	if b.Backends() != device.SetOf(device.BackendBLE) {
		t.Errorf("Backends() = %v", b.Backends())
	}
}

func TestBreaker_CancellationDoesNotTrip(t *testing.T) {
	inner := &fakeAdapter{name: "bluez", err: context.Canceled}
	b := NewBreaker(inner, 1, time.Hour, nil)
	for range 3 {
		_, _ = b.Poll(context.Background())
	}
	if b.State() != gobreaker.StateClosed {
		t.Errorf("State() = %v, want closed", b.State())
	}
}

func TestBackendsOf_Default(t *testing.T) {
	type bare struct{ Adapter }
	if got := BackendsOf(bare{}); got != device.AllBackends {
		t.Errorf("BackendsOf() = %v, want all", got)
	}
}

// busObject answers D-Bus calls from a method table.
type busObject struct {
	dbus.BusObject
	replies map[string][]interface{}
	err     error
}

func (b *busObject) CallWithContext(_ context.Context, method string, _ dbus.Flags, _ ...interface{}) *dbus.Call {
	if b.err != nil {
		return &dbus.Call{Err: b.err}
	}
	body, ok := b.replies[method]
	if !ok {
		return &dbus.Call{Err: errors.New("unknown method " + method)}
	}
	return &dbus.Call{Body: body}
}

func v(x any) dbus.Variant { return dbus.MakeVariant(x) }

func TestBlueZ_Poll(t *testing.T) {
	objects := managedObjects{
		"/org/bluez/hci0": {"org.bluez.Adapter1": {"Powered": v(true)}},
		"/org/bluez/hci0/dev_AA_BB_CC_DD_EE_01": {
			bluezDeviceInterface: {
				"Address": v("AA:BB:CC:DD:EE:01"), "Alias": v("MX Master"), "Name": v("MX"),
				"Paired": v(true), "Connected": v(true),
			},
			bluezBatteryInterface: {"Percentage": v(byte(80))},
		},
		"/org/bluez/hci0/dev_AA_BB_CC_DD_EE_02": {
			bluezDeviceInterface: {
				"Address": v("AA:BB:CC:DD:EE:02"), "Name": v("Buds"), "Class": v(uint32(0x240404)),
				"Paired": v(true), "Connected": v(false),
			},
		},
		"/org/bluez/hci0/dev_AA_BB_CC_DD_EE_03": {
			bluezDeviceInterface: {"Address": v("AA:BB:CC:DD:EE:03"), "Paired": v(false)},
		},
	}
	b := newBlueZ(&busObject{replies: map[string][]interface{}{
		objectManagerInterface + ".GetManagedObjects": {objects},
	}})
	b.now = func() time.Time { return t0 }

	recs, err := b.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("records = %+v, want 2 paired devices and 1 removal", recs)
	}

	mouse, buds, gone := recs[0], recs[1], recs[2]
	if !gone.Removed || gone.SourceID != "AA:BB:CC:DD:EE:03" || mouse.Removed || buds.Removed {
		t.Errorf("removed flags = %v %v %v, want only the unpaired device", mouse.Removed, buds.Removed, gone.Removed)
	}
	if mouse.DisplayName != "MX Master" || mouse.Backend != device.BackendBLE || !mouse.Connected {
		t.Errorf("mouse = %+v", mouse)
	}
	if lvl, ok := mouse.Battery.Level(); !ok || lvl != 80 {
		t.Errorf("mouse battery = %v", mouse.Battery)
	}
	if buds.Backend != device.BackendClassic || buds.Battery.Known() || buds.Connected {
		t.Errorf("buds = %+v, want classic, unknown battery, disconnected", buds)
	}
	if !mouse.ObservedAt.Equal(t0) {
		t.Errorf("ObservedAt = %v", mouse.ObservedAt)
	}
}

func TestBlueZ_UnpairedDeviceLeavesRegistry(t *testing.T) {
	objects := func(paired bool) managedObjects {
		return managedObjects{
			"/org/bluez/hci0/dev_AA_BB_CC_DD_EE_01": {
				bluezDeviceInterface: {
					"Address": v("AA:BB:CC:DD:EE:01"), "Alias": v("MX Master"),
					"Paired": v(paired), "Connected": v(paired),
				},
			},
		}
	}
	poll := func(paired bool) []DeviceRecord {
		b := newBlueZ(&busObject{replies: map[string][]interface{}{
			objectManagerInterface + ".GetManagedObjects": {objects(paired)},
		}})
		b.now = func() time.Time { return t0 }
		recs, err := b.Poll(context.Background())
		if err != nil {
			t.Fatalf("Poll() error = %v", err)
		}
		return recs
	}
	opts := device.MergeOptions{Now: t0, LowThreshold: 20}

	snap := device.Merge(nil, poll(true), opts)
	if snap.Len() != 1 {
		t.Fatalf("paired snapshot has %d devices, want 1", snap.Len())
	}
	if snap = device.Merge(snap, poll(false), opts); snap.Len() != 0 {
		t.Errorf("after unpairing snapshot = %v, want empty", snap.Identities())
	}
	if fresh := device.Merge(nil, poll(false), opts); fresh.Len() != 0 {
		t.Errorf("unknown unpaired device was added: %v", fresh.Identities())
	}
}

func TestBlueZ_CallError(t *testing.T) {
	b := newBlueZ(&busObject{err: errors.New("org.freedesktop.DBus.Error.ServiceUnknown")})
	if _, err := b.Poll(context.Background()); err == nil {
		t.Error("Poll() error = nil")
	}
}

type fakeConn map[dbus.ObjectPath]dbus.BusObject

func (f fakeConn) Object(_ string, path dbus.ObjectPath) dbus.BusObject { return f[path] }

func deviceProps(props map[string]dbus.Variant) *busObject {
	return &busObject{replies: map[string][]interface{}{propertiesGetAll: {props}}}
}

func TestUPower_Poll(t *testing.T) {
	conn := fakeConn{
		upowerPath: &busObject{replies: map[string][]interface{}{
			upowerInterface + ".EnumerateDevices": {[]dbus.ObjectPath{"/dev/bat0", "/dev/mouse", "/dev/kbd", "/dev/gone", "/dev/usb"}},
		}},
		"/dev/bat0": deviceProps(map[string]dbus.Variant{
			"PowerSupply": v(true), "NativePath": v("BAT0"), "Percentage": v(90.0),
		}),
		"/dev/mouse": deviceProps(map[string]dbus.Variant{
			"NativePath": v("hid-aa:bb:cc:dd:ee:01-battery"), "Serial": v("aa:bb:cc:dd:ee:01"),
			"Model": v("MX Master"), "Percentage": v(64.6), "IsPresent": v(true),
		}),
		"/dev/kbd": deviceProps(map[string]dbus.Variant{
			"NativePath": v("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_09"), "Serial": v("AA:BB:CC:DD:EE:09"),
			"Model": v("K380"), "IsPresent": v(false),
		}),
		"/dev/gone": &busObject{err: errors.New("no such object")},
		"/dev/usb": deviceProps(map[string]dbus.Variant{
			"NativePath": v("hidpp_battery_0"), "Serial": v("1234-abcd"), "Percentage": v(50.0),
		}),
	}
	u := newUPower(conn, nil)
	u.now = func() time.Time { return t0 }

	recs, err := u.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if got := ids(recs); !slices.Equal(got, []string{"aa:bb:cc:dd:ee:01", "AA:BB:CC:DD:EE:09"}) {
		t.Fatalf("source ids = %v", got)
	}
	if lvl, _ := recs[0].Battery.Level(); lvl != 65 || recs[0].Backend != device.BackendPnP {
		t.Errorf("mouse = %+v, want 65%% pnp", recs[0])
	}
	if recs[1].Battery.Known() || recs[1].Connected {
		t.Errorf("keyboard = %+v, want unknown battery, disconnected", recs[1])
	}
}
