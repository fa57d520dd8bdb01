// Package logging assembles structured slog loggers and formatting helpers used
// across cuebatch.
//
// It owns the console and JSON handlers, writes a per-run JSON log file next
// to console output, prunes old run logs, and exposes context-aware helpers so
// scheduler code can tag log lines with run IDs, round numbers, and item IDs.
// A no-op logger is provided for tests and wiring code that cannot fail.
package logging
