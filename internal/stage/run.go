package stage

import (
	"context"
	"fmt"
	"log/slog"

	"recordsync/internal/logging"
	"recordsync/internal/recordstore"
	"recordsync/internal/services"
)

// Run prepares and executes h against store with phase-scoped logging.
func Run(ctx context.Context, logger *slog.Logger, h Handler, store *recordstore.Store) (Report, error) {
	if h == nil {
		return Report{}, fmt.Errorf("stage handler unavailable")
	}
	if store == nil {
		return Report{}, fmt.Errorf("record store is required")
	}

	stageCtx := services.WithPhase(ctx, h.Name())
	stageLogger := logging.WithContext(stageCtx, logger)
	if aware, ok := h.(LoggerAware); ok {
		aware.SetLogger(stageLogger)
	}

	stageLogger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))
	if err := h.Prepare(stageCtx); err != nil {
		stageLogger.Error("stage failed",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.String("step", "prepare"),
			logging.Error(err))
		return Report{}, err
	}

	report, err := h.Execute(stageCtx, store)
	if err != nil {
		stageLogger.Error("stage failed",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.String("step", "execute"),
			logging.Int("synced", report.Synced),
			logging.Int("deleted", report.Deleted),
			logging.Error(err))
		return report, err
	}

	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int("synced", report.Synced),
		logging.Int("deleted", report.Deleted),
		logging.Int("issues", report.Issues),
		logging.Int("failed", report.Failed))
	return report, nil
}
