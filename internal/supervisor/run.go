package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"recordsync/internal/config"
	"recordsync/internal/logging"
	"recordsync/internal/preflight"
)

// Options configures the supervisor process.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the supervisor process and blocks until it exits.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("recordsync-%s.log", runID))
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger = logger.With(logging.String("session_id", uuid.NewString()))

	logConfigSnapshot(logger, cfg)
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "recordsync-*.log", Exclude: []string{logPath}},
		logging.RetentionTarget{Dir: cfg.RunReportDir(), Pattern: "*.json"},
	)

	if failed := preflight.Blocking(preflight.RunAll(signalCtx, cfg)); len(failed) > 0 {
		for _, r := range failed {
			logger.Error("preflight check failed",
				logging.String(logging.FieldEventType, "preflight_failed"),
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
				logging.String(logging.FieldErrorHint, "run recordsync doctor"))
		}
		return fmt.Errorf("preflight failed: %d blocking checks", len(failed))
	}

	sup := New(cfg, logger)
	if err := sup.Start(); err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			logger.Error("supervisor already running",
				logging.String(logging.FieldEventType, "supervisor_locked"),
				logging.String("lock", cfg.LockPath()),
				logging.String(logging.FieldErrorHint, "stop the running supervisor with recordsync gate stop"))
		}
		_ = sup.Close()
		return err
	}
	defer sup.Close()

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	return sup.Serve(signalCtx)
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

// ReadPID returns the pid recorded by a running supervisor.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pid file %s: %w", path, err)
	}
	return pid, nil
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	names := make([]string, 0, len(cfg.Jobs))
	for _, job := range cfg.Jobs {
		names = append(names, job.Name)
	}
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("data_dir", cfg.Paths.DataDir),
		logging.String("job_gate", cfg.Gates.JobPath),
		logging.String("supervisor_gate", cfg.Gates.SupervisorPath),
		logging.Strings("jobs", names),
		logging.Strings("targets", cfg.Reconcile.Targets),
		logging.Int("deletion_tolerance", cfg.Reconcile.DeletionTolerance),
		logging.Bool("trial_run", cfg.Reconcile.TrialRun),
		logging.Bool("mirror_enabled", cfg.Mirror.Enabled),
		logging.Bool("metrics_enabled", cfg.Metrics.Enabled),
		logging.Bool("ntfy_configured", cfg.Notifications.NtfyTopic != ""),
	)
}
