// Package logging provides structured logging for BlueGauge.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the monitor.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # json, text
//	  output: "stderr"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("poll complete", "devices", 3)
//	logger.Warn("poll failed, keeping last snapshot", "error", err)
//
// Never log MQTT or InfluxDB credentials.
package logging
