package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"recordsync/internal/logging"
	"recordsync/internal/recordstore"
	"recordsync/internal/services"
)

// DeletionPass compares the store with the complete id set of snap and, when
// the guard approves, tags every candidate for removal and for deletion from
// each target. It must run after Apply for the same snapshot.
func (e *Engine) DeletionPass(ctx context.Context, snap Snapshot) (Decision, error) {
	ctx = services.WithPhase(ctx, "deletion")
	logger := logging.WithContext(ctx, e.logger)

	decision := e.guard.Evaluate(e.store.AllIDs(), snap.IDs(), snap.Complete)
	if decision.Blocked() {
		logging.WarnWithContext(logger, "deletion pass blocked", "deletion_blocked",
			logging.String("reason", decision.Reason),
			logging.Int("candidates", len(decision.Candidates)),
			logging.Int("tolerance", decision.Tolerance),
			logging.Bool("complete_pull", decision.Complete),
			logging.String(logging.FieldImpact, "no records were deleted this run"),
			logging.String(logging.FieldErrorHint, "verify the source; raise deletion_tolerance or purge manually if the removals are real"))
		return decision, nil
	}
	if !decision.Approved {
		return decision, nil
	}
	logger.Info("deletion candidates approved",
		logging.String(logging.FieldEventType, "deletion_approved"),
		logging.Strings("ids", decision.Candidates),
		logging.Bool("trial_run", e.trialRun))
	if e.trialRun {
		return decision, nil
	}

	for _, id := range decision.Candidates {
		if !e.mayContinue(ctx) {
			return decision, e.stopErr(ctx)
		}
		if err := e.store.TagAdd(id, TagMarkedForRemoval); err != nil {
			return decision, fmt.Errorf("mark %s for removal: %w", id, err)
		}
		for _, target := range e.targets {
			if err := e.store.TagAdd(id, DeleteTag(target)); err != nil {
				return decision, fmt.Errorf("mark %s for deletion from %s: %w", id, target, err)
			}
		}
	}
	return decision, nil
}

// Purge deletes records marked for removal that no target still holds, then
// persists. It returns the removed ids; a trial run only reports them.
func (e *Engine) Purge(ctx context.Context, archive bool) ([]string, error) {
	ctx = services.WithPhase(ctx, "purge")
	logger := logging.WithContext(ctx, e.logger)

	var ready []string
	for id, rec := range e.store.Records() {
		if !slices.Contains(rec.Tags, TagMarkedForRemoval) {
			continue
		}
		if pending := PendingDeletions(rec.Tags); len(pending) > 0 {
			logger.Debug("removal waiting on targets",
				logging.EntityID(id),
				logging.Strings("targets", pending))
			continue
		}
		ready = append(ready, id)
	}
	if e.trialRun || len(ready) == 0 {
		return ready, nil
	}

	var (
		deleted []string
		loopErr error
	)
	for _, id := range ready {
		if !e.mayContinue(ctx) {
			loopErr = e.stopErr(ctx)
			break
		}
		if err := e.store.Delete(id, archive); err != nil {
			if errors.Is(err, recordstore.ErrNotLocked) {
				return deleted, err
			}
			logging.ErrorWithContext(logger, "record removal failed", "purge_failed",
				logging.EntityID(id),
				logging.Error(err))
			loopErr = errors.Join(loopErr, err)
			continue
		}
		deleted = append(deleted, id)
	}
	if err := e.store.Persist(); err != nil {
		return deleted, errors.Join(loopErr, err)
	}
	logger.Info("records purged",
		logging.String(logging.FieldEventType, "records_purged"),
		logging.Int("count", len(deleted)),
		logging.Bool("archived", archive))
	return deleted, loopErr
}

func (e *Engine) stopErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrGateTripped
}
