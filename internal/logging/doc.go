// Package logging assembles structured slog loggers and formatting helpers used
// across recordsync.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so phase code can tag log lines
// with entity IDs, phases, run IDs and job names. NewNop gives tests and
// wiring code a logger that cannot fail.
package logging
