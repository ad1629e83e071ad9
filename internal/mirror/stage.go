package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"recordsync/internal/gate"
	"recordsync/internal/logging"
	"recordsync/internal/reconcile"
	"recordsync/internal/recordstore"
	"recordsync/internal/services"
	"recordsync/internal/stage"
	"recordsync/internal/value"
)

// Target is the target name used in resync and delete tags.
const Target = "mirror"

// Stage pushes tagged records into the mirror database.
type Stage struct {
	path   string
	gate   *gate.Gate
	logger *slog.Logger
	now    func() time.Time

	db *DB
}

// NewStage returns a mirror stage writing to the database at path. The job
// gate is checked once per record; nil disables the check.
func NewStage(path string, g *gate.Gate, logger *slog.Logger) *Stage {
	return &Stage{
		path:   path,
		gate:   g,
		logger: logging.NewComponentLogger(logger, "mirror"),
		now:    time.Now,
	}
}

// Name implements stage.Handler.
func (s *Stage) Name() string { return Target }

// SetLogger implements stage.LoggerAware.
func (s *Stage) SetLogger(logger *slog.Logger) {
	s.logger = logging.NewComponentLogger(logger, "mirror")
}

// Prepare opens the database on first use.
func (s *Stage) Prepare(ctx context.Context) error {
	if s.db != nil {
		return nil
	}
	db, err := OpenDB(ctx, s.path)
	if err != nil {
		return services.Wrap(services.ErrTransient, "mirror", "open database", s.path, err)
	}
	s.db = db
	return nil
}

// DB returns the open database, or nil before Prepare.
func (s *Stage) DB() *DB { return s.db }

// Close releases the database.
func (s *Stage) Close() error {
	err := s.db.Close()
	s.db = nil
	return err
}

// HealthCheck implements stage.Handler.
func (s *Stage) HealthCheck(ctx context.Context) stage.Health {
	if err := s.Prepare(ctx); err != nil {
		return stage.Unhealthy(Target, err.Error())
	}
	if err := s.db.Ping(ctx); err != nil {
		return stage.Unhealthy(Target, err.Error())
	}
	return stage.Healthy(Target)
}

func (s *Stage) mayContinue(ctx context.Context) bool {
	if s.gate == nil {
		return ctx.Err() == nil
	}
	return s.gate.MayContinue(ctx)
}

func (s *Stage) stopErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return reconcile.ErrGateTripped
}

// Execute applies pending deletions, then pending resyncs. Tag changes are
// made in memory; the caller persists the store.
func (s *Stage) Execute(ctx context.Context, store *recordstore.Store) (stage.Report, error) {
	var report stage.Report
	if s.db == nil {
		return report, fmt.Errorf("mirror database not prepared")
	}
	deleteTag := reconcile.DeleteTag(Target)
	resyncTag := reconcile.ResyncTag(Target)

	for _, id := range store.Tagged(deleteTag) {
		if !s.mayContinue(ctx) {
			return report, s.stopErr(ctx)
		}
		if err := s.db.Delete(ctx, id); err != nil {
			report.Failed++
			logging.ErrorWithContext(s.logger, "mirror delete failed", "mirror_delete_failed",
				logging.EntityID(id),
				logging.Error(err))
			continue
		}
		if err := store.TagRemove(id, deleteTag); err != nil {
			return report, err
		}
		report.Deleted++
	}

	for _, id := range store.Tagged(resyncTag) {
		if !s.mayContinue(ctx) {
			return report, s.stopErr(ctx)
		}
		rec, ok := store.Record(id)
		if !ok || slices.Contains(rec.Tags, reconcile.TagMarkedForRemoval) {
			continue
		}
		if err := s.syncRecord(ctx, store, rec, resyncTag, &report); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (s *Stage) syncRecord(ctx context.Context, store *recordstore.Store, rec recordstore.Record, resyncTag string, report *stage.Report) error {
	logger := s.logger.With(logging.EntityID(rec.ID))
	payload, err := store.Fetch(rec.ID)
	if err != nil {
		report.Failed++
		logging.ErrorWithContext(logger, "mirror sync failed", "mirror_sync_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run recordsync check; the record stays tagged for the next run"))
		return nil
	}
	if payload.Kind() != value.Mapping {
		report.Issues++
		logging.WarnWithContext(logger, "payload cannot be mirrored", "mirror_data_quality",
			logging.String("payload_kind", payload.Kind().String()),
			logging.String(logging.FieldImpact, "record not mirrored until the source sends an object"),
			logging.String(logging.FieldErrorHint, "fix the entity at the source"))
		return store.TagAdd(rec.ID, reconcile.TagDataQuality)
	}

	row := Row{
		ID:          rec.ID,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
		ContentHash: rec.ContentHash,
		Payload:     payload.String(),
		SyncedAt:    s.now().Unix(),
	}
	if err := s.db.Upsert(ctx, row); err != nil {
		report.Failed++
		logging.ErrorWithContext(logger, "mirror sync failed", "mirror_sync_failed", logging.Error(err))
		return nil
	}
	if err := store.TagRemove(rec.ID, resyncTag); err != nil {
		return err
	}
	if err := store.TagRemove(rec.ID, reconcile.TagDataQuality); err != nil {
		return err
	}
	report.Synced++
	return nil
}
