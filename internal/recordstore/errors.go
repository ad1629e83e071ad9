package recordstore

import (
	"fmt"

	"recordsync/internal/services"
)

var (
	// ErrExists is returned by Add when the id is already present.
	ErrExists = fmt.Errorf("record already exists: %w", services.ErrConflict)
	// ErrNotFound is returned for operations on an unknown id.
	ErrNotFound = fmt.Errorf("record: %w", services.ErrNotFound)
	// ErrInvalidID rejects ids that cannot be used as file names or catalog cells.
	ErrInvalidID = fmt.Errorf("invalid record id: %w", services.ErrValidation)
	// ErrInvalidTag rejects empty tags and tags that cannot be stored.
	ErrInvalidTag = fmt.Errorf("invalid tag: %w", services.ErrValidation)
	// ErrNotInitialized means the directory holds no catalog yet.
	ErrNotInitialized = fmt.Errorf("record store not initialized: %w", services.ErrNotFound)
	// ErrAlreadyInitialized is returned by Initialize over an existing catalog.
	ErrAlreadyInitialized = fmt.Errorf("record store already initialized: %w", services.ErrConflict)
	// ErrInconsistent is returned by a strict Open when catalog and payload files disagree.
	ErrInconsistent = fmt.Errorf("record store inconsistent: %w", services.ErrConsistency)
	// ErrLocked means another writer holds the store lock.
	ErrLocked = fmt.Errorf("record store locked by another writer: %w", services.ErrConflict)
	// ErrNotLocked is returned by mutations attempted without holding the lock.
	ErrNotLocked = fmt.Errorf("record store lock not held: %w", services.ErrConflict)
	// ErrUnknownColumn is returned by Sort for a column the catalog does not have.
	ErrUnknownColumn = fmt.Errorf("unknown catalog column: %w", services.ErrValidation)
)
