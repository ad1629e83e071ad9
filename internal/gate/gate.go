package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"recordsync/internal/config"
	"recordsync/internal/logging"
)

// Scope names which loop a gate governs.
type Scope string

const (
	ScopeJob        Scope = "job"
	ScopeSupervisor Scope = "supervisor"
)

// ParseScope validates a scope name.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeJob, ScopeSupervisor:
		return Scope(s), nil
	}
	return "", fmt.Errorf("unknown gate scope %q (want job or supervisor)", s)
}

// Gate is a persisted "may continue" flag.
type Gate struct {
	scope   Scope
	key     string
	backend Backend
	logger  *slog.Logger
}

// New returns a gate reading key from backend.
func New(scope Scope, backend Backend, key string, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Gate{
		scope:   scope,
		key:     key,
		backend: backend,
		logger:  logging.NewComponentLogger(logger, "gate").With(logging.String("scope", string(scope))),
	}
}

// Scope returns the gate scope.
func (g *Gate) Scope() Scope { return g.scope }

// Backend returns the storage behind the gate.
func (g *Gate) Backend() Backend { return g.backend }

// Get reads the gate. A missing key reads as true.
func (g *Gate) Get(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	v, found, err := g.backend.Load(g.key)
	if err != nil {
		return false, fmt.Errorf("read %s gate: %w", g.scope, err)
	}
	if !found {
		return true, nil
	}
	return v, nil
}

// Set writes the gate.
func (g *Gate) Set(ctx context.Context, mayContinue bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := g.backend.Store(g.key, mayContinue); err != nil {
		return fmt.Errorf("write %s gate: %w", g.scope, err)
	}
	g.logger.Debug("gate updated",
		logging.Bool("may_continue", mayContinue),
		logging.String(logging.FieldEventType, "gate_set"))
	return nil
}

// MayContinue reports whether work should go on. Unreadable gate state is
// logged and treated as "continue" so a corrupt file cannot wedge the
// pipeline. A cancelled context reads as stop.
func (g *Gate) MayContinue(ctx context.Context) bool {
	v, err := g.Get(ctx)
	if err == nil {
		return v
	}
	if ctx.Err() != nil {
		return false
	}
	logging.WarnWithContext(g.logger, "gate state unreadable; continuing", "gate_unreadable",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "fix or delete the gate file; it is recreated as {} on next access"),
		logging.String(logging.FieldImpact, "stop requests through this gate are ignored until it is readable"))
	return true
}

// Pair holds the job and supervisor gates.
type Pair struct {
	Job        *Gate
	Supervisor *Gate
}

// FromConfig builds file-backed gates from the gate section of cfg.
func FromConfig(cfg *config.Config, logger *slog.Logger) Pair {
	return Pair{
		Job:        New(ScopeJob, NewFileBackend(cfg.Gates.JobPath), cfg.Gates.Key, logger),
		Supervisor: New(ScopeSupervisor, NewFileBackend(cfg.Gates.SupervisorPath), cfg.Gates.Key, logger),
	}
}

// Scoped returns the gate for scope.
func (p Pair) Scoped(scope Scope) *Gate {
	if scope == ScopeSupervisor {
		return p.Supervisor
	}
	return p.Job
}

// StopAll asks both loops to stop.
func (p Pair) StopAll(ctx context.Context) error {
	return p.setAll(ctx, false)
}

// EnableAll lets both loops run.
func (p Pair) EnableAll(ctx context.Context) error {
	return p.setAll(ctx, true)
}

func (p Pair) setAll(ctx context.Context, v bool) error {
	var errs []error
	for _, g := range []*Gate{p.Job, p.Supervisor} {
		if g == nil {
			continue
		}
		if err := g.Set(ctx, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
