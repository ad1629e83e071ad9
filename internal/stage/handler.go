package stage

import (
	"context"
	"log/slog"

	"recordsync/internal/recordstore"
)

// Handler is a downstream stage run after reconciliation. Stages talk to the
// rest of the pipeline only through record tags.
type Handler interface {
	Name() string
	Prepare(context.Context) error
	Execute(context.Context, *recordstore.Store) (Report, error)
	HealthCheck(context.Context) Health
}

// LoggerAware is implemented by stages that accept a run-scoped logger.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}

// Report counts what a stage did.
type Report struct {
	Synced  int `json:"synced"`
	Deleted int `json:"deleted"`
	Issues  int `json:"issues"`
	Failed  int `json:"failed"`
}
