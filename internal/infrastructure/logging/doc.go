// Package logging provides structured logging for the MELCloud bridge.
//
// This package wraps Go's standard log/slog package so every component
// logs through the same structured interface with consistent default
// fields.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("polling device", "device_id", 1234)
//	logger.Error("cloud request failed", "error", err)
//
// # Security
//
// Never log MELCloud credentials or the context key. The session token
// authenticates every cloud request; treat it like a password.
package logging
