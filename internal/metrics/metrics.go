// Package metrics exports run and entity counters in the Prometheus text
// format. recordsync runs as a batch process, so metrics are written to a
// node_exporter textfile after each job rather than served over HTTP.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"recordsync/internal/config"
)

const namespace = "recordsync"

// Recorder holds the metric collectors. A disabled Recorder accepts every
// call and records nothing.
type Recorder struct {
	enabled  bool
	textfile string
	registry *prometheus.Registry

	entities           *prometheus.CounterVec
	runs               *prometheus.CounterVec
	runDuration        *prometheus.HistogramVec
	deletionCandidates *prometheus.GaugeVec
	storeRecords       *prometheus.GaugeVec
	lastRun            *prometheus.GaugeVec
}

// New builds a recorder from the metrics section of cfg.
func New(cfg *config.Config) *Recorder {
	if !cfg.Metrics.Enabled {
		return &Recorder{}
	}
	return newRecorder(cfg.Metrics.TextfilePath)
}

func newRecorder(textfile string) *Recorder {
	r := &Recorder{
		enabled:  true,
		textfile: textfile,
		registry: prometheus.NewRegistry(),
		entities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_total",
			Help:      "Entities examined by reconciliation, by classification",
		}, []string{"job", "outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Job runs, by outcome",
		}, []string{"job", "outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Job run duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"job"}),
		deletionCandidates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "deletion_candidates",
			Help:      "Records missing from the last snapshot",
		}, []string{"job"}),
		storeRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_records",
			Help:      "Records in the store after the last run",
		}, []string{"job"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}, []string{"job"}),
	}
	r.registry.MustRegister(r.entities, r.runs, r.runDuration, r.deletionCandidates, r.storeRecords, r.lastRun)
	return r
}

// Enabled reports whether observations are recorded.
func (r *Recorder) Enabled() bool { return r != nil && r.enabled }

// Registry exposes the underlying registry, or nil when disabled.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Run is the outcome of one job run.
type Run struct {
	Job                string
	Outcome            string
	Duration           time.Duration
	DeletionCandidates int
	StoreRecords       int
	FinishedAt         time.Time
}

// ObserveRun records a finished run.
func (r *Recorder) ObserveRun(run Run) {
	if !r.Enabled() {
		return
	}
	r.runs.WithLabelValues(run.Job, run.Outcome).Inc()
	r.runDuration.WithLabelValues(run.Job).Observe(run.Duration.Seconds())
	r.deletionCandidates.WithLabelValues(run.Job).Set(float64(run.DeletionCandidates))
	r.storeRecords.WithLabelValues(run.Job).Set(float64(run.StoreRecords))
	if !run.FinishedAt.IsZero() {
		r.lastRun.WithLabelValues(run.Job).Set(float64(run.FinishedAt.Unix()))
	}
}

// ForJob returns an entity observer bound to job.
func (r *Recorder) ForJob(job string) *JobRecorder {
	return &JobRecorder{recorder: r, job: job}
}

// JobRecorder counts entity classifications for one job.
type JobRecorder struct {
	recorder *Recorder
	job      string
}

// ObserveEntity counts one classified entity.
func (j *JobRecorder) ObserveEntity(class string) {
	if !j.recorder.Enabled() {
		return
	}
	j.recorder.entities.WithLabelValues(j.job, class).Inc()
}

// Flush writes every metric to the configured textfile atomically. It does
// nothing when disabled or when no textfile is configured.
func (r *Recorder) Flush() error {
	if !r.Enabled() || r.textfile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(r.textfile), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(r.textfile, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
