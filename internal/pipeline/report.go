package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"recordsync/internal/fileutil"
	"recordsync/internal/reconcile"
	"recordsync/internal/stage"
)

// JobReport describes one run.
type JobReport struct {
	RunID      string                  `json:"run_id"`
	Job        string                  `json:"job"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
	Outcome    reconcile.Outcome       `json:"outcome"`
	Skipped    bool                    `json:"skipped,omitempty"`
	Summary    reconcile.Summary       `json:"summary"`
	Deletion   *reconcile.Decision     `json:"deletion,omitempty"`
	Stages     map[string]stage.Report `json:"stages,omitempty"`
	Purged     []string                `json:"purged,omitempty"`
	GateReset  bool                    `json:"gate_reset,omitempty"`
	Error      string                  `json:"error,omitempty"`

	err error
}

// Err returns the error that failed or cancelled the run.
func (r JobReport) Err() error { return r.err }

func (r *JobReport) fail(err error) {
	r.Outcome = reconcile.OutcomeFailed
	r.err = err
	r.Error = err.Error()
}

// fileName is unique per run and sorts by start time.
func (r JobReport) fileName() string {
	short := r.RunID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s-%s-%s.json", r.StartedAt.UTC().Format("20060102T150405Z"), r.Job, short)
}

// WriteReport stores report as indented JSON in dir and returns the path.
func WriteReport(dir string, report JobReport) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create run report directory: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode run report: %w", err)
	}
	path := filepath.Join(dir, report.fileName())
	if err := fileutil.WriteFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write run report: %w", err)
	}
	return path, nil
}

// ReadReport loads a report written by WriteReport.
func ReadReport(path string) (JobReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return JobReport{}, err
	}
	var report JobReport
	if err := json.Unmarshal(data, &report); err != nil {
		return JobReport{}, fmt.Errorf("decode run report %s: %w", path, err)
	}
	return report, nil
}
