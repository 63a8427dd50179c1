// Package logging provides structured logging with per-module log level configuration.
//
// # Overview
//
// The logging system uses Go's slog package with automatic output routing:
//   - Logs to stdout (text or JSON) by default
//   - Also logs to the systemd journal when enabled and journald is reachable
//
// Master and worker processes both initialize logging from the same
// configuration, so a worker's records carry the same format and levels as
// the master's. After the master redirects its standard streams, stdout
// records land in the configured sink file.
//
// # Usage
//
// Initialize the logging system once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",      // Global log level: debug, info, warn, error
//		Format: "text",      // Output format: text or json
//		Modules: map[string]string{
//			"supervisor": "debug",  // Per-module overrides
//			"relay":      "warn",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("supervisor")
//	logger.Info("Worker started", "pid", pid)
//
// Add contextual attributes:
//
//	logger := logging.GetLogger("worker").With("master_pid", masterPID)
//	logger.Info("Worker running")  // Includes master_pid in all logs
//
// # Viewing Logs
//
// When journal output is enabled:
//
//	journalctl -t prefork                    # All prefork logs
//	journalctl -t prefork MODULE=supervisor  # Supervisor only
//	journalctl -t prefork -p err             # Errors only
//
// # Configuration
//
// Example TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "text"
//	journal = true
//
//	[logging.modules]
//	supervisor = "debug"
package logging
