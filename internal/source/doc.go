// Package source reads raw device records from the operating system.
//
// An Adapter performs one bounded, synchronous poll and returns whatever
// its backend currently reports. BlueZ covers Bluetooth Low Energy and
// classic devices over the system D-Bus; UPower covers HID peripherals the
// kernel exposes as power supplies (the PnP backend). Multi polls several
// adapters at once and degrades to a PartialError when some of them fail,
// and Breaker stops hammering a backend that keeps failing.
//
// Devices whose battery cannot be read are reported with an unknown battery,
// never as an error.
package source
