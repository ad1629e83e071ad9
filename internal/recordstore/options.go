package recordstore

import (
	"log/slog"
	"time"
)

// Option configures Open and Initialize.
type Option func(*options)

type options struct {
	logger          *slog.Logger
	createIfMissing bool
	strict          bool
	wipe            bool
	now             func() time.Time
	sortColumn      string
	sortAscending   bool
}

func defaultOptions() options {
	return options{
		now:        time.Now,
		sortColumn: ColumnCreatedAt,
	}
}

// WithLogger routes store diagnostics to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithCreateIfMissing makes Open initialize an empty store when the
// directory has no catalog yet.
func WithCreateIfMissing(create bool) Option {
	return func(o *options) { o.createIfMissing = create }
}

// WithStrictConsistency makes Open fail with ErrInconsistent instead of
// logging a catalog/payload mismatch and continuing.
func WithStrictConsistency(strict bool) Option {
	return func(o *options) { o.strict = strict }
}

// WithWipe lets Initialize replace an existing catalog and remove every
// payload file. Change logs and archives are kept.
func WithWipe() Option {
	return func(o *options) { o.wipe = true }
}

// WithClock overrides the clock used for change-log timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithDefaultSort sets the order applied after loading. Records are sorted by
// created_at, newest first, unless configured otherwise.
func WithDefaultSort(column string, ascending bool) Option {
	return func(o *options) {
		o.sortColumn = column
		o.sortAscending = ascending
	}
}
