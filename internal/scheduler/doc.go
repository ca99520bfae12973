// Package scheduler runs the update cycle: poll the device sources, merge
// into the registry, diff against the previous snapshot, filter and send
// notifications, render the tray presentation and hand it to readers.
//
// One goroutine owns the cycle. Readers get presentations through a
// Publisher and never block it; configuration changes and refresh
// requests are posted through non-blocking methods.
package scheduler
