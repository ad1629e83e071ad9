// Package preflight provides readiness checks for the paths, gate files,
// store and downstream targets recordsync depends on.
//
// These checks run in two contexts:
//   - "recordsync doctor" runs RunAll and prints every result.
//   - "recordsync run" and the supervisor call Blocking before the first job
//     so a missing data directory fails fast instead of on every run.
//
// Each optional feature is only checked when enabled in config.
package preflight
