// Package mirror keeps a SQLite copy of the record store for tools that want
// tabular access.
//
// The mirror is a downstream target named "mirror". Records tagged
// resync:mirror are upserted and the tag cleared; records tagged
// delete:mirror are removed from the table and the tag cleared so the local
// purge can proceed. Payloads that are not JSON objects cannot be mirrored:
// they are tagged data_quality_issue and keep their resync tag until the
// source fixes them.
//
// The schema is managed by golang-migrate from embedded migrations.
package mirror
