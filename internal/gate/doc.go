// Package gate implements the execution gates used for cooperative
// cancellation.
//
// A gate is a named boolean persisted outside the process. True means "may
// continue". Two gates exist: the job gate, checked once per entity by
// long-running loops and reset by a job before it exits, and the supervisor
// gate, whose "stop" value shuts the scheduling loop down until an operator
// enables it again.
//
// # Storage
//
// FileBackend keeps a small JSON object mapping keys to booleans. The file is
// created as {} when missing and is read and atomically rewritten on every
// access, so operators can flip a gate with any editor or with:
//
//	recordsync gate stop
//	recordsync gate enable --scope job
//
// MemoryBackend serves tests.
package gate
