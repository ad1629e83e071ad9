package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Store controls record store behaviour.
type Store struct {
	ArchiveOnDelete      bool   `toml:"archive_on_delete"`
	StrictConsistency    bool   `toml:"strict_consistency"`
	DefaultSort          string `toml:"default_sort"`
	DefaultSortAscending bool   `toml:"default_sort_ascending"`
}

// Reconcile controls how snapshots are merged into the store.
type Reconcile struct {
	DeletionTolerance   int      `toml:"deletion_tolerance"`
	OrderNormalizedHash bool     `toml:"order_normalized_hash"`
	TrialRun            bool     `toml:"trial_run"`
	Targets             []string `toml:"targets"`
}

// Gates locates the job and supervisor execution gates.
type Gates struct {
	JobPath        string `toml:"job_path"`
	SupervisorPath string `toml:"supervisor_path"`
	Key            string `toml:"key"`
}

// Supervisor contains scheduler loop timing.
type Supervisor struct {
	PollInterval int  `toml:"poll_interval"`
	WatchGates   bool `toml:"watch_gates"`
}

// Job describes one scheduled reconciliation job.
type Job struct {
	Name        string `toml:"name"`
	Interval    int    `toml:"interval"`
	Source      string `toml:"source"`
	Format      string `toml:"format"`
	TrialRun    bool   `toml:"trial_run"`
	MaxEntities int    `toml:"max_entities"`
}

// IntervalDuration returns the job interval as a duration.
func (j Job) IntervalDuration() time.Duration {
	return time.Duration(j.Interval) * time.Second
}

// Mirror configures the SQLite downstream target.
type Mirror struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic       string `toml:"ntfy_topic"`
	RequestTimeout  int    `toml:"request_timeout"`
	RunSummary      bool   `toml:"run_summary"`
	DeletionBlocked bool   `toml:"deletion_blocked"`
	Errors          bool   `toml:"errors"`
}

// Metrics configures the Prometheus textfile export.
type Metrics struct {
	Enabled      bool   `toml:"enabled"`
	TextfilePath string `toml:"textfile_path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for recordsync.
//
// Configuration sections by subsystem:
//   - Paths: store, state and log directories
//   - Store: archive and consistency behaviour of the record store
//   - Reconcile: deletion tolerance, hashing mode and downstream targets
//   - Gates: execution gate files
//   - Supervisor: scheduler loop timing
//   - Jobs: scheduled reconciliation jobs
//   - Mirror: SQLite downstream target
//   - Notifications: ntfy push notification settings
//   - Metrics: Prometheus textfile export
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Store         Store         `toml:"store"`
	Reconcile     Reconcile     `toml:"reconcile"`
	Gates         Gates         `toml:"gates"`
	Supervisor    Supervisor    `toml:"supervisor"`
	Jobs          []Job         `toml:"jobs"`
	Mirror        Mirror        `toml:"mirror"`
	Notifications Notifications `toml:"notifications"`
	Metrics       Metrics       `toml:"metrics"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file).DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories. The data
// directory is left to the record store, which owns its first-run path.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.RunReportDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath is the supervisor single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "recordsync.lock")
}

// PIDPath is where the supervisor records its process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "recordsync.pid")
}

// RunReportDir holds one JSON report per job run.
func (c *Config) RunReportDir() string {
	return filepath.Join(c.Paths.LogDir, "runs")
}

// JobByName returns the configured job with the given name.
func (c *Config) JobByName(name string) (Job, bool) {
	name = strings.TrimSpace(name)
	for _, job := range c.Jobs {
		if job.Name == name {
			return job, true
		}
	}
	return Job{}, false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
