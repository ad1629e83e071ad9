package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"recordsync/internal/fingerprint"
	"recordsync/internal/gate"
	"recordsync/internal/logging"
	"recordsync/internal/recordstore"
	"recordsync/internal/services"
	"recordsync/internal/value"
)

// ErrGateTripped is returned by passes that stopped because the job gate
// read "stop".
var ErrGateTripped = errors.New("execution gate tripped")

// Metrics receives one observation per classified entity.
type Metrics interface {
	ObserveEntity(class string)
}

// Engine applies snapshots to one record store. The caller holds the store's
// writer lock for the engine's lifetime.
type Engine struct {
	store    *recordstore.Store
	gate     *gate.Gate
	guard    Guard
	mode     fingerprint.Mode
	targets  []string
	trialRun bool
	now      func() time.Time
	logger   *slog.Logger
	metrics  Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithGate sets the job gate checked once per entity.
func WithGate(g *gate.Gate) Option { return func(e *Engine) { e.gate = g } }

// WithGuard sets the deletion guard.
func WithGuard(g Guard) Option { return func(e *Engine) { e.guard = g } }

// WithMode sets the fingerprint mode.
func WithMode(m fingerprint.Mode) Option { return func(e *Engine) { e.mode = m } }

// WithTargets sets the downstream targets tagged for resync and deletion.
func WithTargets(targets []string) Option {
	return func(e *Engine) { e.targets = append([]string(nil), targets...) }
}

// WithTrialRun makes every pass report without mutating the store.
func WithTrialRun(trial bool) Option { return func(e *Engine) { e.trialRun = trial } }

// WithClock overrides the clock used for batch timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option { return func(e *Engine) { e.logger = logger } }

// WithMetrics sets the per-entity metrics sink.
func WithMetrics(m Metrics) Option { return func(e *Engine) { e.metrics = m } }

// NewEngine returns an engine over store.
func NewEngine(store *recordstore.Store, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		mode:  fingerprint.OrderNormalized,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.NewComponentLogger(e.logger, "reconcile")
	return e
}

// Store returns the store the engine mutates.
func (e *Engine) Store() *recordstore.Store { return e.store }

// TrialRun reports whether the engine mutates nothing.
func (e *Engine) TrialRun() bool { return e.trialRun }

func (e *Engine) mayContinue(ctx context.Context) bool {
	if e.gate == nil {
		return ctx.Err() == nil
	}
	return e.gate.MayContinue(ctx)
}

// Apply classifies every entity in snap and applies adds and updates. The
// store is persisted before returning unless this is a trial run.
func (e *Engine) Apply(ctx context.Context, snap Snapshot) Result {
	start := e.now()
	ctx = services.WithPhase(ctx, "reconcile")
	logger := logging.WithContext(ctx, e.logger)

	batchTime := snap.FetchedAt
	if batchTime.IsZero() {
		batchTime = start
	}
	res := Result{Outcome: OutcomeCompleted, Summary: Summary{TrialRun: e.trialRun}}

	for _, ent := range snap.Entities {
		if !e.mayContinue(ctx) {
			if err := ctx.Err(); err != nil {
				res.Outcome = OutcomeCanceled
				res.Err = err
			} else {
				res.Outcome = OutcomeGateTripped
			}
			logger.Info("reconciliation stopped early",
				logging.String(logging.FieldEventType, "reconcile_stopped"),
				logging.String("outcome", string(res.Outcome)),
				logging.Int("examined", res.Summary.Examined),
				logging.Int("remaining", len(snap.Entities)-res.Summary.Examined))
			break
		}
		res.Summary.Examined++
		class, err := e.applyEntity(ctx, ent, batchTime.Unix())
		if err != nil {
			class = ClassErrored
			logging.ErrorWithContext(logger, "entity reconciliation failed", "reconcile_entity_failed",
				logging.EntityID(ent.ID),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "the entity is retried on the next run"))
		}
		res.Summary.count(class, ent.ID)
		if e.metrics != nil {
			e.metrics.ObserveEntity(string(class))
		}
	}

	if !e.trialRun {
		if err := e.store.Persist(); err != nil {
			res.Outcome = OutcomeFailed
			res.Err = errors.Join(res.Err, services.Wrap(services.ErrTransient, "reconcile", "persist store", "", err))
		}
	}
	res.Summary.Duration = e.now().Sub(start)
	return res
}

func (e *Engine) applyEntity(ctx context.Context, ent Entity, batchTime int64) (Class, error) {
	if err := ent.Validate(); err != nil {
		return ClassErrored, err
	}
	logger := logging.WithContext(services.WithEntityID(ctx, ent.ID), e.logger)
	hash := fingerprint.SumValue(ent.Payload, e.mode)

	if !e.store.Contains(ent.ID) {
		if e.trialRun {
			return ClassAdded, nil
		}
		if err := e.store.Add(ent.ID, batchTime, ent.CreatedAt, ent.Payload, hash); err != nil {
			return ClassErrored, fmt.Errorf("add: %w", err)
		}
		if err := e.tagChanged(ent.ID); err != nil {
			return ClassErrored, err
		}
		logger.Debug("entity added", logging.String(logging.FieldEventType, "entity_added"))
		return ClassAdded, nil
	}

	rec, ok := e.store.Record(ent.ID)
	if !ok {
		return ClassErrored, fmt.Errorf("record vanished during reconciliation: %w", recordstore.ErrNotFound)
	}
	if rec.ContentHash == hash {
		return ClassUnchanged, nil
	}

	stored, err := e.store.Fetch(ent.ID)
	if err != nil {
		return ClassErrored, fmt.Errorf("load stored payload: %w", err)
	}
	change := value.Diff(stored, ent.Payload)
	if change.Empty() {
		logging.WarnWithContext(logger, "content hash changed without a content difference", "hash_mismatch_without_diff",
			logging.String("stored_hash", rec.ContentHash),
			logging.String("incoming_hash", hash),
			logging.String("fingerprint_mode", e.mode.String()),
			logging.String(logging.FieldImpact, "record left unchanged"),
			logging.String(logging.FieldErrorHint, "enable order_normalized_hash if the source reorders fields"))
		return ClassAnomaly, nil
	}

	upd := recordstore.Update{
		Payload:    ent.Payload,
		UpdatedAt:  batchTime,
		Hash:       hash,
		Diff:       change.ToValue(),
		LogChanges: true,
	}
	if ent.CreatedAt != 0 && ent.CreatedAt != rec.CreatedAt {
		logging.WarnWithContext(logger, "source creation time moved", "created_at_moved",
			logging.Int64("stored_created_at", rec.CreatedAt),
			logging.Int64("incoming_created_at", ent.CreatedAt),
			logging.String(logging.FieldImpact, "stored creation time replaced with the source value"),
			logging.String(logging.FieldErrorHint, "check whether the source re-created the entity"))
		upd.CreatedAt = ent.CreatedAt
	}
	if e.trialRun {
		logger.Info("entity would be updated",
			logging.String(logging.FieldEventType, "entity_update_planned"),
			logging.Strings("changed_paths", change.Paths()))
		return ClassUpdated, nil
	}
	if err := e.store.Update(ent.ID, upd); err != nil {
		return ClassErrored, fmt.Errorf("update: %w", err)
	}
	if err := e.tagChanged(ent.ID); err != nil {
		return ClassErrored, err
	}
	logger.Debug("entity updated",
		logging.String(logging.FieldEventType, "entity_updated"),
		logging.Strings("changed_paths", change.Paths()))
	return ClassUpdated, nil
}

func (e *Engine) tagChanged(id string) error {
	for _, target := range e.targets {
		if err := e.store.TagAdd(id, ResyncTag(target)); err != nil {
			return fmt.Errorf("tag %s: %w", target, err)
		}
	}
	if err := e.store.TagAdd(id, TagSourceChanged); err != nil {
		return fmt.Errorf("tag: %w", err)
	}
	return nil
}
