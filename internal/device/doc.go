// Package device owns the canonical, deduplicated set of Bluetooth devices.
//
// Each poll cycle hands the registry a batch of raw Records, one per backend
// observation. Merge folds them into an immutable Snapshot:
//
//   - a record whose source id is already known joins that device
//   - otherwise a record whose normalised name matches exactly one device
//     that is not yet reported by the same backend joins it
//   - otherwise it becomes a new device
//
// Devices that drop out of a batch are kept as disconnected with their last
// battery level until they exceed the forget-after retention or a backend
// reports them removed. The low-battery hysteresis flag is advanced here so
// that diffing two snapshots stays a pure function.
//
// Snapshots are published through an atomic pointer: readers never observe
// a half-merged state and never need a lock.
package device
