package recordstore

import (
	"context"
	"fmt"
	"os"
	"time"
)

const lockRetryDelay = 100 * time.Millisecond

// Lock blocks until the store's writer lock is acquired or ctx ends. A newly
// acquired lock reloads the catalog from disk.
func (s *Store) Lock(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	if s.Locked() {
		return nil
	}
	ok, err := s.flock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquire store lock: %w", err)
	}
	if !ok {
		return ErrLocked
	}
	return s.acquired()
}

// TryLock acquires the writer lock without waiting. It returns ErrLocked
// when another writer holds it. Like Lock, it reloads the catalog.
func (s *Store) TryLock() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	if s.Locked() {
		return nil
	}
	ok, err := s.flock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire store lock: %w", err)
	}
	if !ok {
		return ErrLocked
	}
	return s.acquired()
}

func (s *Store) acquired() error {
	if err := s.reload(); err != nil {
		_ = s.flock.Unlock()
		return fmt.Errorf("reload catalog under lock: %w", err)
	}
	s.mu.Lock()
	s.locked = true
	s.mu.Unlock()
	return nil
}

// Unlock releases the writer lock. Unlocking a store that is not locked is a
// no-op.
func (s *Store) Unlock() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.locked {
		return nil
	}
	if err := s.flock.Unlock(); err != nil {
		return fmt.Errorf("release store lock: %w", err)
	}
	s.locked = false
	return nil
}

// Locked reports whether this handle holds the writer lock.
func (s *Store) Locked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.locked
}

func (s *Store) requireLock() error {
	if !s.locked {
		return ErrNotLocked
	}
	return nil
}
