// Package stage defines the contract for downstream stages that consume
// record tags after reconciliation, and Run, which executes one stage with
// phase-scoped logging.
package stage
