package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"recordsync/internal/services"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFetchJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	writeFile(t, path, `{"complete":true,"entities":[
		{"id":"vid-1","created_at":1690000000,"payload":{"title":"First","n":1}},
		{"id":42,"payload":{"title":"Second"}}
	]}`)

	snap, err := NewFileSource(path, "", 0, nil).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !snap.Complete || len(snap.Entities) != 2 {
		t.Fatalf("unexpected snapshot complete=%v entities=%d", snap.Complete, len(snap.Entities))
	}
	first := snap.Entities[0]
	if first.ID != "vid-1" || first.CreatedAt != 1690000000 || first.Payload.String() != `{"title":"First","n":1}` {
		t.Fatalf("unexpected first entity %+v", first)
	}
	if snap.Entities[1].ID != "42" {
		t.Fatalf("numeric id not converted: %q", snap.Entities[1].ID)
	}
	if snap.FetchedAt.IsZero() {
		t.Fatal("expected fetch time")
	}
}

func TestFetchYAMLKeepsKeyOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.yaml")
	writeFile(t, path, `complete: true
entities:
  - id: a
    created_at: 10
    payload:
      zeta: 1
      alpha: [x, y]
`)
	snap, err := NewFileSource(path, FormatAuto, 0, nil).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := snap.Entities[0].Payload.String(); got != `{"zeta":1,"alpha":["x","y"]}` {
		t.Fatalf("unexpected payload %s", got)
	}
}

func TestFetchDirectoryMergesCompleteness(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.json"), `{"complete":true,"entities":[{"id":"a","payload":{}}]}`)
	writeFile(t, filepath.Join(dir, "nested", "b.yml"), "complete: false\nentities:\n  - id: b\n    payload: {}\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")
	writeFile(t, filepath.Join(dir, ".hidden.json"), "not json")

	snap, err := NewFileSource(dir, "", 0, nil).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(snap.Entities) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(snap.Entities))
	}
	if snap.Complete {
		t.Fatal("one incomplete document makes the snapshot incomplete")
	}
}

func TestFetchGlob(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "2024", "part1.json"), `{"complete":true,"entities":[{"id":"a","payload":{}}]}`)
	writeFile(t, filepath.Join(dir, "2025", "part2.json"), `{"complete":true,"entities":[{"id":"b","payload":{}}]}`)
	writeFile(t, filepath.Join(dir, "2025", "skip.yaml"), "entities: []\n")

	snap, err := NewFileSource(filepath.Join(dir, "**", "*.json"), "", 0, nil).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(snap.Entities) != 2 || !snap.Complete {
		t.Fatalf("unexpected snapshot %d entities complete=%v", len(snap.Entities), snap.Complete)
	}
}

func TestFetchDuplicateIDsMakeSnapshotIncomplete(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.json"), `{"complete":true,"entities":[{"id":"x","payload":{"v":1}}]}`)
	writeFile(t, filepath.Join(dir, "b.json"), `{"complete":true,"entities":[{"id":"x","payload":{"v":2}}]}`)

	snap, err := NewFileSource(dir, "", 0, nil).Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Entities) != 1 || snap.Complete {
		t.Fatalf("unexpected snapshot %d entities complete=%v", len(snap.Entities), snap.Complete)
	}
	if snap.Entities[0].Payload.String() != `{"v":1}` {
		t.Fatal("first occurrence should win")
	}
}

func TestFetchMaxEntities(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.json")
	writeFile(t, path, `{"complete":true,"entities":[{"id":"a","payload":{}},{"id":"b","payload":{}},{"id":"c","payload":{}}]}`)

	snap, err := NewFileSource(path, "", 2, nil).Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Entities) != 2 || snap.Complete {
		t.Fatalf("truncated snapshot must be incomplete, got %d complete=%v", len(snap.Entities), snap.Complete)
	}
}

func TestFetchBareListIsIncomplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.json")
	writeFile(t, path, `[{"id":"a","payload":{}}]`)
	snap, err := NewFileSource(path, "", 0, nil).Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.Complete || len(snap.Entities) != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestFetchErrorsAreTransient(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	writeFile(t, bad, `{"complete":true,"entities":[{"payload":{}}]}`)

	tests := []struct {
		name string
		path string
	}{
		{"missing path", filepath.Join(dir, "missing.json")},
		{"entity without id", bad},
		{"empty glob", filepath.Join(dir, "*.yaml")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFileSource(tt.path, "", 0, nil).Fetch(context.Background())
			if !errors.Is(err, services.ErrTransient) {
				t.Fatalf("expected transient error, got %v", err)
			}
		})
	}
}

func TestResolveFormat(t *testing.T) {
	if _, err := resolveFormat(FormatAuto, "export.csv"); err == nil {
		t.Fatal("expected error for unknown extension")
	}
	if f, _ := resolveFormat(FormatYAML, "export.txt"); f != FormatYAML {
		t.Fatalf("explicit format should win, got %s", f)
	}
}
