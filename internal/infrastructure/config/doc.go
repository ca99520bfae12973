// Package config handles loading and validating BlueGauge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Per-field sanitising (a bad value never invalidates the whole file)
//   - Default value handling
//   - Persisting changes made from the tray menu
//
// Configuration values are replaced wholesale, never mutated in place once
// published: the tray menu clones the current value, edits the clone and
// posts it to the scheduler for the next cycle.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Warn("config partially ignored", "error", err) // cfg is still usable
//	}
//	fmt.Println(cfg.UpdateInterval())
package config
