package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStore()
	c.normalizeReconcile()
	if err := c.normalizeGates(); err != nil {
		return err
	}
	if err := c.normalizeJobs(); err != nil {
		return err
	}
	if err := c.normalizeMirror(); err != nil {
		return err
	}
	c.normalizeNotifications()
	if err := c.normalizeMetrics(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = xdgDir("XDG_STATE_HOME", defaultStateDir)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(strings.TrimSpace(c.Paths.DataDir)); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

// xdgDir honours an XDG base directory override for the recordsync subdir.
func xdgDir(env, fallback string) string {
	if base, ok := os.LookupEnv(env); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "recordsync")
	}
	return fallback
}

func (c *Config) normalizeStore() {
	c.Store.DefaultSort = strings.ToLower(strings.TrimSpace(c.Store.DefaultSort))
	if c.Store.DefaultSort == "" {
		c.Store.DefaultSort = defaultSort
	}
}

func (c *Config) normalizeReconcile() {
	targets := make([]string, 0, len(c.Reconcile.Targets))
	for _, target := range c.Reconcile.Targets {
		target = strings.ToLower(norm.NFC.String(strings.TrimSpace(target)))
		if target == "" || slices.Contains(targets, target) {
			continue
		}
		targets = append(targets, target)
	}
	c.Reconcile.Targets = targets
}

func (c *Config) normalizeGates() error {
	c.Gates.Key = strings.TrimSpace(c.Gates.Key)
	if c.Gates.Key == "" {
		c.Gates.Key = defaultGateKey
	}
	if strings.TrimSpace(c.Gates.JobPath) == "" {
		c.Gates.JobPath = filepath.Join(c.Paths.StateDir, defaultJobGateFile)
	}
	if strings.TrimSpace(c.Gates.SupervisorPath) == "" {
		c.Gates.SupervisorPath = filepath.Join(c.Paths.StateDir, defaultSupervisorGateFile)
	}
	var err error
	if c.Gates.JobPath, err = expandPath(strings.TrimSpace(c.Gates.JobPath)); err != nil {
		return fmt.Errorf("gates.job_path: %w", err)
	}
	if c.Gates.SupervisorPath, err = expandPath(strings.TrimSpace(c.Gates.SupervisorPath)); err != nil {
		return fmt.Errorf("gates.supervisor_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeJobs() error {
	for i := range c.Jobs {
		job := &c.Jobs[i]
		job.Name = strings.TrimSpace(job.Name)
		job.Format = strings.ToLower(strings.TrimSpace(job.Format))
		if job.Format == "" {
			job.Format = "auto"
		}
		if job.Interval == 0 {
			job.Interval = defaultJobInterval
		}
		source := strings.TrimSpace(job.Source)
		if source == "" {
			continue
		}
		// Globs are expanded relative to the home directory but never cleaned,
		// since filepath.Clean would collapse "**" segments.
		if strings.HasPrefix(source, "~/") {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("jobs[%d].source: %w", i, err)
			}
			source = home + source[1:]
		}
		job.Source = source
	}
	return nil
}

func (c *Config) normalizeMirror() error {
	if strings.TrimSpace(c.Mirror.Path) == "" {
		c.Mirror.Path = filepath.Join(c.Paths.StateDir, defaultMirrorFile)
	}
	var err error
	if c.Mirror.Path, err = expandPath(strings.TrimSpace(c.Mirror.Path)); err != nil {
		return fmt.Errorf("mirror.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("RECORDSYNC_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout == 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeMetrics() error {
	if strings.TrimSpace(c.Metrics.TextfilePath) == "" {
		c.Metrics.TextfilePath = filepath.Join(c.Paths.StateDir, defaultMetricsFile)
	}
	var err error
	if c.Metrics.TextfilePath, err = expandPath(strings.TrimSpace(c.Metrics.TextfilePath)); err != nil {
		return fmt.Errorf("metrics.textfile_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
