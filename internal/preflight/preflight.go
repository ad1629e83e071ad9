package preflight

import (
	"context"

	"recordsync/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
	// Optional results do not block runs when they fail.
	Optional bool `json:"optional,omitempty"`
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckGateFile("Job gate", cfg.Gates.JobPath, cfg.Gates.Key),
		CheckGateFile("Supervisor gate", cfg.Gates.SupervisorPath, cfg.Gates.Key),
		CheckStore(cfg),
	}

	// A source may appear between runs, so a missing one only warns.
	for _, job := range cfg.Jobs {
		src := CheckSource(job)
		src.Optional = true
		results = append(results, src)
	}

	if cfg.Mirror.Enabled {
		results = append(results, CheckMirror(ctx, cfg.Mirror.Path))
	}

	if cfg.Notifications.NtfyTopic != "" {
		ntfy := CheckNtfy(ctx, cfg.Notifications.NtfyTopic)
		ntfy.Optional = true
		results = append(results, ntfy)
	}

	return results
}

// Blocking returns the failed results that should stop a run.
func Blocking(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}
