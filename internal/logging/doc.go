// Package logging assembles structured slog loggers and formatting helpers used
// across chartreel.
//
// It owns the console/JSON handlers, level parsing, and the rotated log file,
// and exposes context-aware helpers so pipeline code can tag log lines with job
// IDs, phases, segment indexes, and correlation IDs. The render job logs to
// stderr because its stdout carries progress events for the supervisor.
package logging
