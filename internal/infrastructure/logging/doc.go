// Package logging provides structured logging for the TP-Link bridge.
//
// It wraps log/slog so every component logs the same way:
//
//   - JSON output for production, text for development
//   - service and version fields on every entry
//   - level filtering (debug, info, warn, error)
//
// Configuration lives in the logging section of the bridge config:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("poll pass complete", "plugs", 6, "failed", 0)
//
// Never log broker passwords or InfluxDB tokens.
package logging
