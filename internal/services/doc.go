// Package services defines shared utilities consumed by the pipeline phases
// and downstream integrations.
//
// Key responsibilities:
//   - Context helpers that stamp entity IDs, phase names, run identifiers and
//     job names for logging.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures (transient vs permanent) without string matching.
//
// Use these helpers when wiring new phase logic so error handling and
// observability stay uniform across the pipeline.
package services
