// Package logging provides structured logging for the trainer store.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
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
//	  output: "stderr"   # stdout, stderr, file
//	  file:
//	    path: "./logs/entstore.log"
//	    max_size: 10     # megabytes before rotation
//	    max_backups: 3
//	    max_age: 28      # days
//
// File output is rotated with lumberjack; call Logger.Close on shutdown.
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("store opened", "path", cfg.Database.Path)
//	logger.Error("failed to connect", "error", err)
//
// # Security
//
// Never log secrets, tokens, passwords, or API keys.
// Save names are user input and are logged as plain attributes.
package logging
