package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"recordsync/internal/config"
	"recordsync/internal/logging"
	"recordsync/internal/recordstore"
)

// lockWait bounds how long maintenance commands wait for a running job to
// release the store.
const lockWait = 30 * time.Second

type commandContext struct {
	configFlag   *string
	logLevelFlag *string
	verboseFlag  *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag, logLevelFlag *string, verboseFlag *bool) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
		verboseFlag:  verboseFlag,
	}
}

func (c *commandContext) configFlagValue() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, _, err := config.Load(c.configFlagValue())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
	})
	return c.config, c.configErr
}

func (c *commandContext) logLevel() string {
	if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
		return strings.TrimSpace(*c.logLevelFlag)
	}
	if c.config != nil {
		return c.config.Logging.Level
	}
	return "info"
}

// ensureLogger returns a logger writing to the shared log file, and to stdout
// with --verbose.
func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		outputs := []string{filepath.Join(cfg.Paths.LogDir, logging.LogFileName)}
		if c.verboseFlag != nil && *c.verboseFlag {
			outputs = append(outputs, "stdout")
		}
		c.logger, c.loggerErr = logging.New(logging.Options{
			Level:            c.logLevel(),
			Format:           cfg.Logging.Format,
			OutputPaths:      outputs,
			ErrorOutputPaths: outputs,
		})
	})
	return c.logger, c.loggerErr
}

// openStore loads the record store read-only.
func (c *commandContext) openStore() (*recordstore.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	store, err := recordstore.Open(cfg.Paths.DataDir,
		recordstore.WithLogger(logger),
		recordstore.WithStrictConsistency(cfg.Store.StrictConsistency),
		recordstore.WithDefaultSort(cfg.Store.DefaultSort, cfg.Store.DefaultSortAscending))
	if err != nil {
		return nil, wrapStoreError(err, cfg.Paths.DataDir)
	}
	return store, nil
}

// withLockedStore opens the store, waits for the writer lock and persists
// after fn succeeds.
func (c *commandContext) withLockedStore(cmd *cobra.Command, fn func(*recordstore.Store) error) error {
	store, err := c.openStore()
	if err != nil {
		return err
	}
	lockCtx, cancel := context.WithTimeout(cmd.Context(), lockWait)
	defer cancel()
	if err := store.Lock(lockCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("record store is busy (a job is running); try again later")
		}
		return fmt.Errorf("lock record store: %w", err)
	}
	defer store.Unlock()
	if err := fn(store); err != nil {
		return err
	}
	return store.Persist()
}

func wrapStoreError(err error, dir string) error {
	switch {
	case errors.Is(err, recordstore.ErrNotInitialized):
		return fmt.Errorf("no record store at %s; create one with `recordsync init`", dir)
	case errors.Is(err, recordstore.ErrInconsistent):
		return fmt.Errorf("%w; inspect with `recordsync check`", err)
	default:
		return err
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
