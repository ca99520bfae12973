// Package notify decides which device events become user notifications and
// delivers them.
//
// Policy applies the user's per-category toggles, the global mute and a
// per-device debounce window. Dispatcher then fans the survivors out to
// every Notifier (desktop bubble, MQTT, log) under a global rate cap.
//
//	evs := events.Diff(prev, cur)
//	ns := policy.Filter(evs, cfg.Notifications, now)
//	dispatcher.Dispatch(ctx, ns)
package notify
