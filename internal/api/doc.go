// Package api implements the local HTTP status API and tray WebSocket
// stream for BlueGauge.
//
// This package provides:
//   - REST endpoints for the device snapshot and per-device battery history
//   - The current tray presentation as JSON and as a PNG icon
//   - A refresh endpoint that asks the scheduler for an immediate cycle
//   - A WebSocket stream pushing every new tray presentation
//
// # Architecture
//
// The API is a read-mostly view onto the registry and the scheduler's
// publisher, meant for status bars and scripts running as the same user.
// It never writes to the registry.
//
// # Security
//
// There is no authentication. The default bind address is loopback.
package api
