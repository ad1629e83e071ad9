// Package reconcile classifies a fresh snapshot of source entities against a
// record store and applies the result.
//
// Apply walks the snapshot once. Each entity is new (added), unchanged (its
// fingerprint matches the stored content hash) or changed (fingerprints
// differ and the structural diff is non-empty). A fingerprint mismatch with
// an empty diff is logged as an anomaly and leaves the record alone. The job
// gate is checked before every entity, per-entity failures are logged and
// counted without stopping the pass, and the store is persisted on every exit
// path.
//
// Deletion is a separate pass over the complete id universe. Records known
// locally but missing from the snapshot are only acted on when the snapshot
// is a complete pull and the candidate count is within tolerance. Approved
// candidates are tagged rather than removed so downstream targets can delete
// their copies first; Purge drops local rows once no target deletion is
// pending.
package reconcile
