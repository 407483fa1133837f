// Package logging assembles structured slog loggers and formatting helpers used
// across recflow.
//
// It owns the console and JSON handlers, fans records out to the terminal and
// the daemon log file, and exposes context-aware helpers so workflow code tags
// log lines with the pending item, its stage, and the tick correlation ID.
// Warnings and errors go through WarnWithContext/ErrorWithContext so each one
// carries an event_type and an operator hint.
package logging
