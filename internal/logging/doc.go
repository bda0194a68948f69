// Package logging provides structured logging for groundlink.
//
// This package wraps a zap logger with convenience functions for the logging
// patterns used across the link service: connection lifecycle, packets
// crossing an interface, and bytes discarded while resynchronizing a stream.
//
// # Log Levels
//
//   - Debug: hex dumps, raw reads and writes
//   - Info: connections, packets, state changes
//   - Warn: reconnects, dropped commands
//   - Error: sync discards, transport failures
//
// Sync discards are logged at error level: they mean telemetry was lost.
//
// # Configuration
//
// Initialize logging at startup:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// An empty level falls back to GROUNDLINK_LOG_LEVEL; when that is unset too
// the logger is a no-op.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use once Initialize has
// returned.
package logging
