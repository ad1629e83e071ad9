// Package supervisor is the long-running scheduler.
//
// It holds a single-instance lock, opens both execution gates at startup and
// runs due jobs one at a time until the supervisor gate is closed or the
// process receives SIGINT/SIGTERM. On a signal both gates are closed so any
// cooperating process stops at its next entity.
package supervisor
