package config

import (
	"errors"
	"fmt"
	"strings"
)

var sortColumns = map[string]struct{}{
	"id":            {},
	"updated_at":    {},
	"created_at":    {},
	"payload_ref":   {},
	"changelog_ref": {},
	"content_hash":  {},
	"tags":          {},
}

// stageTargets maps each reconcile target to whether its stage is enabled.
// Only a running stage clears the target's resync: and delete: tags.
var stageTargets = map[string]func(*Config) bool{
	"mirror": func(c *Config) bool { return c.Mirror.Enabled },
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateReconcile(); err != nil {
		return err
	}
	if err := c.validateGates(); err != nil {
		return err
	}
	if err := c.validateSupervisor(); err != nil {
		return err
	}
	if err := c.validateJobs(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	if c.Paths.DataDir == c.Paths.StateDir {
		return errors.New("paths.data_dir and paths.state_dir must differ")
	}
	return nil
}

func (c *Config) validateStore() error {
	if _, ok := sortColumns[c.Store.DefaultSort]; !ok {
		return fmt.Errorf("store.default_sort: unknown column %q", c.Store.DefaultSort)
	}
	return nil
}

func (c *Config) validateReconcile() error {
	if c.Reconcile.DeletionTolerance < 0 {
		return errors.New("reconcile.deletion_tolerance must be zero or positive")
	}
	for _, target := range c.Reconcile.Targets {
		if strings.ContainsAny(target, " \t:") {
			return fmt.Errorf("reconcile.targets: %q must not contain whitespace or ':'", target)
		}
		enabled, known := stageTargets[target]
		if !known {
			return fmt.Errorf("reconcile.targets: %q has no stage (known targets: mirror)", target)
		}
		if !enabled(c) {
			return fmt.Errorf("reconcile.targets: %q is listed but its stage is disabled; enable [%s] or remove the target", target, target)
		}
	}
	return nil
}

func (c *Config) validateGates() error {
	if c.Gates.JobPath == c.Gates.SupervisorPath {
		return errors.New("gates.job_path and gates.supervisor_path must differ")
	}
	return nil
}

func (c *Config) validateSupervisor() error {
	if c.Supervisor.PollInterval <= 0 {
		return errors.New("supervisor.poll_interval must be positive")
	}
	return nil
}

func (c *Config) validateJobs() error {
	seen := make(map[string]struct{}, len(c.Jobs))
	for i, job := range c.Jobs {
		if job.Name == "" {
			return fmt.Errorf("jobs[%d].name must be set", i)
		}
		if _, dup := seen[job.Name]; dup {
			return fmt.Errorf("jobs[%d].name %q is duplicated", i, job.Name)
		}
		seen[job.Name] = struct{}{}
		if job.Source == "" {
			return fmt.Errorf("jobs.%s.source must be set", job.Name)
		}
		if job.Interval < 0 {
			return fmt.Errorf("jobs.%s.interval must be positive", job.Name)
		}
		if job.MaxEntities < 0 {
			return fmt.Errorf("jobs.%s.max_entities must be zero or positive", job.Name)
		}
		switch job.Format {
		case "auto", "json", "yaml":
		default:
			return fmt.Errorf("jobs.%s.format: unsupported value %q", job.Name, job.Format)
		}
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout < 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be zero or positive")
	}
	return nil
}
