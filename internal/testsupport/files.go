package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// WriteSnapshot writes a complete snapshot document holding entities to
// path as JSON.
func WriteSnapshot(t testing.TB, path string, entities ...map[string]any) {
	t.Helper()
	WriteSnapshotDoc(t, path, map[string]any{"complete": true, "entities": entities})
}

// WriteSnapshotDoc writes doc to path as JSON, creating parent directories.
func WriteSnapshotDoc(t testing.TB, path string, doc any) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// Entity builds a snapshot entity with a title field.
func Entity(id string, createdAt int64, title string) map[string]any {
	return map[string]any{
		"id":         id,
		"created_at": createdAt,
		"payload":    map[string]any{"title": title},
	}
}
