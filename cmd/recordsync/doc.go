// Package main hosts the recordsync CLI entrypoint and command graph.
//
// The Cobra command tree covers store setup and inspection, one-shot job
// runs, the long-running supervisor, manual tag and purge maintenance,
// execution gate control and configuration scaffolding. Configuration is
// resolved once per invocation by commandContext; every command reads the
// same store, gate files and run reports the supervisor uses.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
