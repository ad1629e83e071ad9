package reconcile

import (
	"log/slog"
	"time"

	"recordsync/internal/logging"
)

// Outcome says how a pass ended.
type Outcome string

const (
	OutcomeCompleted   Outcome = "completed"
	OutcomeGateTripped Outcome = "gate_tripped"
	OutcomeCanceled    Outcome = "canceled"
	OutcomeFailed      Outcome = "failed"
)

// Class is the per-entity classification.
type Class string

const (
	ClassAdded     Class = "added"
	ClassUpdated   Class = "updated"
	ClassUnchanged Class = "unchanged"
	ClassAnomaly   Class = "anomaly"
	ClassErrored   Class = "errored"
)

// Summary counts what a run did.
type Summary struct {
	Examined           int           `json:"examined"`
	Added              int           `json:"added"`
	Updated            int           `json:"updated"`
	Unchanged          int           `json:"unchanged"`
	Anomalies          int           `json:"anomalies"`
	Deleted            int           `json:"deleted"`
	Errored            int           `json:"errored"`
	ErroredIDs         []string      `json:"errored_ids,omitempty"`
	DeletionCandidates int           `json:"deletion_candidates"`
	DeletionApproved   bool          `json:"deletion_approved"`
	TrialRun           bool          `json:"trial_run"`
	Duration           time.Duration `json:"duration_ns"`
}

func (s *Summary) count(class Class, id string) {
	switch class {
	case ClassAdded:
		s.Added++
	case ClassUpdated:
		s.Updated++
	case ClassUnchanged:
		s.Unchanged++
	case ClassAnomaly:
		s.Anomalies++
	case ClassErrored:
		s.Errored++
		s.ErroredIDs = append(s.ErroredIDs, id)
	}
}

// Log writes the summary as one info line.
func (s Summary) Log(logger *slog.Logger) {
	if logger == nil {
		return
	}
	logger.Info("reconciliation summary",
		logging.String(logging.FieldEventType, "reconcile_summary"),
		logging.Int("examined", s.Examined),
		logging.Int("added", s.Added),
		logging.Int("updated", s.Updated),
		logging.Int("unchanged", s.Unchanged),
		logging.Int("anomalies", s.Anomalies),
		logging.Int("deleted", s.Deleted),
		logging.Int("errored", s.Errored),
		logging.Strings("errored_ids", s.ErroredIDs),
		logging.Int("deletion_candidates", s.DeletionCandidates),
		logging.Bool("deletion_approved", s.DeletionApproved),
		logging.Bool("trial_run", s.TrialRun),
		logging.Duration("duration", s.Duration))
}

// Result is what Apply returns. Err is set only for OutcomeFailed and
// OutcomeCanceled.
type Result struct {
	Outcome Outcome
	Summary Summary
	Err     error
}
