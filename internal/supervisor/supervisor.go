package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"

	"recordsync/internal/config"
	"recordsync/internal/gate"
	"recordsync/internal/logging"
	"recordsync/internal/pipeline"
)

// ErrAlreadyRunning is returned by Start when another supervisor holds the
// instance lock.
var ErrAlreadyRunning = errors.New("another recordsync supervisor is already running")

type scheduledJob struct {
	job      pipeline.Job
	interval time.Duration
	next     time.Time
	last     *pipeline.JobReport
}

// JobStatus describes a scheduled job.
type JobStatus struct {
	Name        string        `json:"name"`
	Interval    time.Duration `json:"interval_ns"`
	NextRun     time.Time     `json:"next_run"`
	LastOutcome string        `json:"last_outcome,omitempty"`
	LastRun     time.Time     `json:"last_run,omitzero"`
}

// Supervisor schedules configured jobs.
type Supervisor struct {
	cfg    *config.Config
	logger *slog.Logger
	runner *pipeline.Runner
	jobs   []*scheduledJob
	poll   time.Duration
	now    func() time.Time

	lockPath string
	lock     *flock.Flock
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithRunner replaces the runner built from config.
func WithRunner(r *pipeline.Runner) Option { return func(s *Supervisor) { s.runner = r } }

// WithJob schedules job every interval. Any WithJob replaces the configured
// job list.
func WithJob(job pipeline.Job, interval time.Duration) Option {
	return func(s *Supervisor) {
		s.jobs = append(s.jobs, &scheduledJob{job: job, interval: interval})
	}
}

// WithClock overrides the scheduling clock.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPollInterval overrides the wake-up interval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.poll = d
		}
	}
}

// New wires a supervisor from cfg. Jobs are taken from cfg unless WithJob is
// given.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Supervisor {
	logger = logging.NewComponentLogger(logger, "supervisor")
	s := &Supervisor{
		cfg:      cfg,
		logger:   logger,
		poll:     time.Duration(cfg.Supervisor.PollInterval) * time.Second,
		now:      time.Now,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.poll <= 0 {
		s.poll = time.Second
	}
	if s.runner == nil {
		s.runner = pipeline.NewRunner(cfg, logger)
	}
	if len(s.jobs) == 0 {
		jobs := pipeline.JobsFromConfig(cfg, logger)
		for i, job := range jobs {
			s.jobs = append(s.jobs, &scheduledJob{job: job, interval: cfg.Jobs[i].IntervalDuration()})
		}
	}
	return s
}

// Start acquires the single-instance lock.
func (s *Supervisor) Start() error {
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	start := s.now()
	for _, j := range s.jobs {
		j.next = start
	}
	s.logger.Info("supervisor started",
		logging.String(logging.FieldEventType, "supervisor_start"),
		logging.String("lock", s.lockPath),
		logging.Int("jobs", len(s.jobs)))
	return nil
}

// Close releases the lock and stage resources.
func (s *Supervisor) Close() error {
	var errs []error
	if s.lock.Locked() {
		errs = append(errs, s.lock.Unlock())
	}
	errs = append(errs, s.runner.Close())
	return errors.Join(errs...)
}

// Serve opens both gates and loops until ctx is done or the supervisor gate
// is closed. Start must have been called.
func (s *Supervisor) Serve(ctx context.Context) error {
	if !s.lock.Locked() {
		return errors.New("supervisor not started")
	}
	gates := s.runner.Gates()
	if err := gates.EnableAll(ctx); err != nil {
		return fmt.Errorf("open gates: %w", err)
	}
	wake := s.watch(ctx, gates.Supervisor)

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	for {
		if ctx.Err() != nil {
			s.shutdown(ctx, gates)
			return nil
		}
		if !gates.Supervisor.MayContinue(ctx) {
			s.logger.Info("supervisor gate closed; exiting",
				logging.String(logging.FieldEventType, "supervisor_gate_closed"))
			return nil
		}
		s.RunDue(ctx)
		select {
		case <-ctx.Done():
		case <-ticker.C:
		case <-wake:
		}
	}
}

// RunDue runs every job whose next run time has passed, one at a time. It
// stops early when the supervisor gate closes.
func (s *Supervisor) RunDue(ctx context.Context) []pipeline.JobReport {
	gates := s.runner.Gates()
	var reports []pipeline.JobReport
	for _, j := range s.jobs {
		if s.now().Before(j.next) {
			continue
		}
		if ctx.Err() != nil || !gates.Supervisor.MayContinue(ctx) {
			break
		}
		report := s.runner.Run(ctx, j.job)
		j.last = &report
		j.next = nextRun(report.StartedAt, j.interval, s.now())
		s.logger.Debug("job scheduled",
			logging.Job(j.job.Name),
			logging.String("next_run", j.next.Format(time.RFC3339)))
		reports = append(reports, report)
	}
	return reports
}

// Status lists the scheduled jobs.
func (s *Supervisor) Status() []JobStatus {
	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		st := JobStatus{Name: j.job.Name, Interval: j.interval, NextRun: j.next}
		if j.last != nil {
			st.LastOutcome = string(j.last.Outcome)
			st.LastRun = j.last.StartedAt
		}
		out = append(out, st)
	}
	return out
}

// nextRun keeps a fixed cadence from the last start but never schedules in
// the past, so an overrunning job does not trigger a burst of catch-up runs.
func nextRun(started time.Time, interval time.Duration, now time.Time) time.Time {
	next := started.Add(interval)
	if next.Before(now) {
		return now
	}
	return next
}

func (s *Supervisor) shutdown(ctx context.Context, gates gate.Pair) {
	if err := gates.StopAll(context.WithoutCancel(ctx)); err != nil {
		logging.WarnWithContext(s.logger, "closing gates on shutdown failed", "gate_stop_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "cooperating processes may keep running"),
			logging.String(logging.FieldErrorHint, "run recordsync gate stop"))
	}
	s.logger.Info("supervisor shutting down",
		logging.String(logging.FieldEventType, "supervisor_stop"))
}

// watch returns a channel that fires when the supervisor gate file changes,
// or nil when watching is disabled or unavailable.
func (s *Supervisor) watch(ctx context.Context, g *gate.Gate) <-chan struct{} {
	if !s.cfg.Supervisor.WatchGates {
		return nil
	}
	fb, ok := g.Backend().(*gate.FileBackend)
	if !ok {
		return nil
	}
	ch, err := fb.Watch(ctx)
	if err != nil {
		logging.WarnWithContext(s.logger, "gate watch unavailable", "gate_watch_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "gate changes are noticed at the next poll"),
			logging.String(logging.FieldErrorHint, "check inotify limits"))
		return nil
	}
	return ch
}
