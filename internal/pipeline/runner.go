package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"recordsync/internal/config"
	"recordsync/internal/fingerprint"
	"recordsync/internal/gate"
	"recordsync/internal/logging"
	"recordsync/internal/metrics"
	"recordsync/internal/mirror"
	"recordsync/internal/notifications"
	"recordsync/internal/reconcile"
	"recordsync/internal/recordstore"
	"recordsync/internal/services"
	"recordsync/internal/source"
	"recordsync/internal/stage"
)

// Job is one runnable reconciliation job.
type Job struct {
	Name     string
	Source   source.Source
	TrialRun bool
}

// JobsFromConfig builds file-sourced jobs from cfg.
func JobsFromConfig(cfg *config.Config, logger *slog.Logger) []Job {
	jobs := make([]Job, 0, len(cfg.Jobs))
	for _, j := range cfg.Jobs {
		jobs = append(jobs, Job{
			Name:     j.Name,
			Source:   source.FromJob(j, logger),
			TrialRun: j.TrialRun,
		})
	}
	return jobs
}

// Runner executes jobs against the configured store.
type Runner struct {
	cfg      *config.Config
	logger   *slog.Logger
	gates    gate.Pair
	notifier notifications.Service
	metrics  *metrics.Recorder
	stages   []stage.Handler
	now      func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithGates overrides the gates built from config.
func WithGates(p gate.Pair) Option { return func(r *Runner) { r.gates = p } }

// WithNotifier overrides the notifier built from config.
func WithNotifier(n notifications.Service) Option { return func(r *Runner) { r.notifier = n } }

// WithMetrics overrides the metrics recorder built from config.
func WithMetrics(m *metrics.Recorder) Option { return func(r *Runner) { r.metrics = m } }

// WithStages replaces the downstream stages built from config.
func WithStages(stages ...stage.Handler) Option {
	return func(r *Runner) { r.stages = stages }
}

// WithClock overrides the clock used for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRunner wires a runner from cfg. Stages default to the mirror when it is
// enabled.
func NewRunner(cfg *config.Config, logger *slog.Logger, opts ...Option) *Runner {
	logger = logging.NewComponentLogger(logger, "pipeline")
	r := &Runner{
		cfg:      cfg,
		logger:   logger,
		gates:    gate.FromConfig(cfg, logger),
		notifier: notifications.NewService(cfg),
		metrics:  metrics.New(cfg),
		now:      time.Now,
	}
	if cfg.Mirror.Enabled {
		r.stages = []stage.Handler{mirror.NewStage(cfg.Mirror.Path, r.gates.Job, logger)}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Gates returns the gates the runner checks.
func (r *Runner) Gates() gate.Pair { return r.gates }

// Close releases stage resources.
func (r *Runner) Close() error {
	var errs []error
	for _, h := range r.stages {
		if c, ok := h.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// Run executes job once and returns its report. It never panics on job
// failure; the outcome and error are in the report.
func (r *Runner) Run(ctx context.Context, job Job) JobReport {
	report := JobReport{
		RunID:     uuid.NewString(),
		Job:       job.Name,
		StartedAt: r.now(),
		Outcome:   reconcile.OutcomeCompleted,
		Stages:    map[string]stage.Report{},
	}
	ctx = services.WithJob(services.WithRunID(ctx, report.RunID), job.Name)
	logger := logging.WithContext(ctx, r.logger)
	trial := job.TrialRun || r.cfg.Reconcile.TrialRun
	report.Summary.TrialRun = trial

	if !r.gates.Job.MayContinue(ctx) {
		report.Skipped = true
		report.Outcome = reconcile.OutcomeGateTripped
		if err := ctx.Err(); err != nil {
			report.Outcome = reconcile.OutcomeCanceled
			report.err = err
		}
		logger.Info("job gate closed; run skipped",
			logging.String(logging.FieldEventType, "job_skipped"),
			logging.String(logging.FieldErrorHint, "run recordsync gate enable --scope job to allow runs"))
		r.finish(ctx, logger, &report, nil)
		return report
	}

	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.Bool("trial_run", trial))

	store, err := recordstore.Open(r.cfg.Paths.DataDir,
		recordstore.WithLogger(logger),
		recordstore.WithStrictConsistency(r.cfg.Store.StrictConsistency),
		recordstore.WithDefaultSort(r.cfg.Store.DefaultSort, r.cfg.Store.DefaultSortAscending))
	if err != nil {
		marker, hint := services.ErrTransient, r.cfg.Paths.DataDir
		if errors.Is(err, recordstore.ErrNotInitialized) {
			marker, hint = services.ErrConfiguration, "run recordsync init"
		}
		report.fail(services.Wrap(marker, "open", "open record store", hint, err))
		r.finish(ctx, logger, &report, nil)
		return report
	}
	if err := store.TryLock(); err != nil {
		report.fail(services.Wrap(services.ErrConflict, "open", "lock record store", "another writer is active", err))
		r.finish(ctx, logger, &report, nil)
		return report
	}

	r.execute(ctx, logger, job, store, trial, &report)
	r.finish(ctx, logger, &report, store)
	return report
}

func (r *Runner) execute(ctx context.Context, logger *slog.Logger, job Job, store *recordstore.Store, trial bool, report *JobReport) {
	fetchCtx := services.WithPhase(ctx, "fetch")
	snap, err := job.Source.Fetch(fetchCtx)
	if err != nil {
		if ctx.Err() != nil {
			report.Outcome = reconcile.OutcomeCanceled
			report.err = ctx.Err()
			return
		}
		report.fail(err)
		return
	}
	logger.Info("snapshot fetched",
		logging.String(logging.FieldEventType, "snapshot_fetched"),
		logging.Int("entities", len(snap.Entities)),
		logging.Bool("complete", snap.Complete))

	engine := reconcile.NewEngine(store,
		reconcile.WithGate(r.gates.Job),
		reconcile.WithGuard(reconcile.Guard{Tolerance: r.cfg.Reconcile.DeletionTolerance}),
		reconcile.WithMode(fingerprint.ModeFor(r.cfg.Reconcile.OrderNormalizedHash)),
		reconcile.WithTargets(r.cfg.Reconcile.Targets),
		reconcile.WithTrialRun(trial),
		reconcile.WithLogger(logger),
		reconcile.WithMetrics(r.metrics.ForJob(job.Name)),
	)

	res := engine.Apply(ctx, snap)
	report.Summary = res.Summary
	report.Outcome = res.Outcome
	if res.Err != nil {
		report.err = res.Err
		report.Error = res.Err.Error()
	}
	if res.Outcome != reconcile.OutcomeCompleted {
		return
	}

	decision, err := engine.DeletionPass(ctx, snap)
	report.Deletion = &decision
	report.Summary.DeletionCandidates = len(decision.Candidates)
	report.Summary.DeletionApproved = decision.Approved
	if decision.Blocked() {
		if nerr := r.notifier.NotifyDeletionBlocked(ctx, job.Name, decision); nerr != nil {
			logger.Debug("deletion notification failed", logging.Error(nerr))
		}
	}
	if r.stopped(ctx, report, err) {
		return
	}

	if !trial {
		for _, h := range r.stages {
			stageReport, err := stage.Run(ctx, logger, h, store)
			report.Stages[h.Name()] = stageReport
			if r.stopped(ctx, report, err) {
				return
			}
		}
	}

	purged, err := engine.Purge(ctx, r.cfg.Store.ArchiveOnDelete)
	report.Purged = purged
	if !trial {
		report.Summary.Deleted = len(purged)
	}
	r.stopped(ctx, report, err)
}

// stopped folds err into report and reports whether the run must end.
func (r *Runner) stopped(ctx context.Context, report *JobReport, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, reconcile.ErrGateTripped):
		report.Outcome = reconcile.OutcomeGateTripped
	case ctx.Err() != nil:
		report.Outcome = reconcile.OutcomeCanceled
		report.err = err
		report.Error = err.Error()
	default:
		report.fail(err)
	}
	return true
}

func (r *Runner) finish(ctx context.Context, logger *slog.Logger, report *JobReport, store *recordstore.Store) {
	if store != nil {
		if !report.Summary.TrialRun {
			if err := store.Persist(); err != nil {
				report.fail(fmt.Errorf("persist store: %w", errors.Join(report.err, err)))
			}
		}
		if err := store.Unlock(); err != nil {
			logger.Warn("store unlock failed", logging.Error(err))
		}
	}

	detached := context.WithoutCancel(ctx)
	if !report.Skipped && report.Outcome != reconcile.OutcomeCompleted {
		if err := r.gates.Job.Set(detached, true); err != nil {
			logging.WarnWithContext(logger, "job gate reset failed", "job_gate_reset_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "later scheduled runs are skipped until the gate is enabled"),
				logging.String(logging.FieldErrorHint, "run recordsync gate enable --scope job"))
		} else {
			report.GateReset = true
		}
	}

	report.FinishedAt = r.now()
	if report.Summary.Duration == 0 {
		report.Summary.Duration = report.FinishedAt.Sub(report.StartedAt)
	}
	if !report.Skipped {
		report.Summary.Log(logger)
	}

	storeRecords := 0
	if store != nil {
		storeRecords = store.Len()
	}
	r.metrics.ObserveRun(metrics.Run{
		Job:                report.Job,
		Outcome:            string(report.Outcome),
		Duration:           report.FinishedAt.Sub(report.StartedAt),
		DeletionCandidates: report.Summary.DeletionCandidates,
		StoreRecords:       storeRecords,
		FinishedAt:         report.FinishedAt,
	})
	if err := r.metrics.Flush(); err != nil {
		logging.WarnWithContext(logger, "metrics export failed", "metrics_flush_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "dashboards show stale values"),
			logging.String(logging.FieldErrorHint, "check metrics.textfile_path permissions"))
	}

	if !report.Skipped {
		if err := r.notifier.NotifyRunCompleted(detached, report.Job, report.Outcome, report.Summary); err != nil {
			logger.Debug("run notification failed", logging.Error(err))
		}
	}
	if report.Outcome == reconcile.OutcomeFailed {
		logging.ErrorWithContext(logger, "job failed", "job_failed",
			logging.Error(report.err),
			logging.Bool("transient", services.IsTransient(report.err)),
			logging.String(logging.FieldErrorHint, "the job gate was reset; the next scheduled run retries"))
		if err := r.notifier.NotifyError(detached, report.err, report.Job); err != nil {
			logger.Debug("error notification failed", logging.Error(err))
		}
	}

	path, err := WriteReport(r.cfg.RunReportDir(), *report)
	if err != nil {
		logging.WarnWithContext(logger, "run report not written", "run_report_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run history is missing this run"),
			logging.String(logging.FieldErrorHint, "check log_dir permissions"))
		return
	}
	logger.Info("job finished",
		logging.String(logging.FieldEventType, "job_complete"),
		logging.String("outcome", string(report.Outcome)),
		logging.String("report", path))
}
