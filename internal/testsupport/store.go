package testsupport

import (
	"testing"

	"recordsync/internal/config"
	"recordsync/internal/recordstore"
)

// MustInitStore creates an empty record store in the config's data
// directory and releases its lock.
func MustInitStore(t testing.TB, cfg *config.Config) {
	t.Helper()

	store, err := recordstore.Initialize(cfg.Paths.DataDir)
	if err != nil {
		t.Fatalf("recordstore.Initialize: %v", err)
	}
	if err := store.Unlock(); err != nil {
		t.Fatalf("unlock store: %v", err)
	}
}

// MustOpenStore opens the config's record store for reading.
func MustOpenStore(t testing.TB, cfg *config.Config) *recordstore.Store {
	t.Helper()

	store, err := recordstore.Open(cfg.Paths.DataDir)
	if err != nil {
		t.Fatalf("recordstore.Open: %v", err)
	}
	return store
}
