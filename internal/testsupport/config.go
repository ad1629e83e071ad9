package testsupport

import (
	"path/filepath"
	"testing"

	"recordsync/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The mirror is disabled and notifications have no topic unless an option
// turns them on.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "store")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Gates.JobPath = filepath.Join(cfgVal.Paths.StateDir, "job_gate.json")
	cfgVal.Gates.SupervisorPath = filepath.Join(cfgVal.Paths.StateDir, "supervisor_gate.json")
	cfgVal.Mirror.Enabled = false
	cfgVal.Mirror.Path = filepath.Join(cfgVal.Paths.StateDir, "mirror.db")
	cfgVal.Metrics.TextfilePath = filepath.Join(cfgVal.Paths.StateDir, "recordsync.prom")
	cfgVal.Reconcile.Targets = nil
	cfgVal.Supervisor.WatchGates = false
	cfgVal.Supervisor.PollInterval = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithJob adds a job reading source every interval seconds. A relative
// source is resolved against the config's base directory.
func WithJob(name, source string, interval int) ConfigOption {
	return func(b *configBuilder) {
		if source != "" && !filepath.IsAbs(source) {
			source = filepath.Join(b.baseDir, source)
		}
		b.cfg.Jobs = append(b.cfg.Jobs, config.Job{
			Name:     name,
			Source:   source,
			Format:   "auto",
			Interval: interval,
		})
	}
}

// WithTolerance sets the deletion tolerance.
func WithTolerance(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Reconcile.DeletionTolerance = n
	}
}

// WithMirror enables the SQLite mirror stage and its target.
func WithMirror() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Mirror.Enabled = true
		b.cfg.Reconcile.Targets = append(b.cfg.Reconcile.Targets, "mirror")
	}
}

// WithMetrics enables the textfile metrics exporter.
func WithMetrics() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Metrics.Enabled = true
	}
}

// WithTrialRun turns on the global trial-run switch.
func WithTrialRun() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Reconcile.TrialRun = true
	}
}

// WithNtfyTopic points notifications at topic.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
