// Package recordstore keeps the durable, per-entity record of everything a
// source has published.
//
// A store is a directory holding:
//
//	catalog.tsv                          one row per record
//	current_data/<id>.json               the current payload of each record
//	previous_versions/<id>_changes.json  lazily created change log
//	previous_versions/<id>_deleted_<n>.json  archived payloads of deleted records
//
// The catalog is read fully into memory by Open and rewritten atomically by
// Persist; payload and change-log files are written as each mutation happens.
// The number of catalog rows must equal the number of payload files. SelfCheck
// reports any divergence with both difference sets and never repairs it.
//
// Stores are single writer. Every mutating call requires the advisory lock on
// <dir>/.lock, taken with Lock or TryLock, and fails with ErrNotLocked
// otherwise. Read-only callers may skip the lock.
package recordstore
