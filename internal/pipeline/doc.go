// Package pipeline runs one reconciliation job end to end.
//
// A run reads the job gate, opens and locks the record store, fetches a
// snapshot, applies it, runs the deletion guard, lets downstream stages
// consume their tags, purges removed records and persists. Whatever happens,
// the store is persisted and unlocked before Run returns, and a job gate that
// was tripped during the run (or a failed run) is reset to "may continue" so
// the next scheduled run is unaffected. A gate already closed when the run
// starts is left closed and the run is skipped.
//
// Every run writes a JSON report to <log_dir>/runs/.
package pipeline
