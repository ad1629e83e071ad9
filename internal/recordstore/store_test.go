package recordstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"recordsync/internal/services"
	"recordsync/internal/value"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Initialize(t.TempDir(), opts...)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { _ = s.Unlock() })
	return s
}

func payload(t *testing.T, raw string) value.Value {
	t.Helper()
	v, err := value.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	return v
}

func reopen(t *testing.T, s *Store, opts ...Option) *Store {
	t.Helper()
	if err := s.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	loaded, err := Open(s.Dir(), opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := loaded.TryLock(); err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	t.Cleanup(func() { _ = loaded.Unlock() })
	return loaded
}

func TestAddFetchAndPointReads(t *testing.T) {
	s := newTestStore(t)
	if err := s.Add("vid-1", 200, 100, payload(t, `{"title":"A","n":1}`), "hash-1"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !s.Contains("vid-1") || s.Len() != 1 {
		t.Fatal("expected record to be present")
	}
	got, err := s.Fetch("vid-1")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got.String() != `{"title":"A","n":1}` {
		t.Fatalf("unexpected payload %s", got)
	}
	if h, _ := s.FetchHash("vid-1"); h != "hash-1" {
		t.Fatalf("unexpected hash %q", h)
	}
	if c, _ := s.FetchCreated("vid-1"); c != 100 {
		t.Fatalf("unexpected created %d", c)
	}
	if u, _ := s.FetchUpdated("vid-1"); u != 200 {
		t.Fatalf("unexpected updated %d", u)
	}
	rec, _ := s.Record("vid-1")
	if rec.ChangelogRef != NoChangelog || rec.PayloadRef != "vid-1.json" {
		t.Fatalf("unexpected refs %+v", rec)
	}
	if _, err := s.FetchHash("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAddIsInsertOnly(t *testing.T) {
	s := newTestStore(t)
	if err := s.Add("vid-1", 1, 1, value.NewMapping(), "h"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	err := s.Add("vid-1", 2, 2, value.NewMapping(), "h2")
	if !errors.Is(err, ErrExists) || !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("expected one record, got %d", s.Len())
	}
}

func TestInvalidIDs(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"", " x", "../x", "a/b", ".hidden", "tab\tid", "line\nid"} {
		if err := s.Add(id, 1, 1, value.NewMapping(), "h"); !errors.Is(err, ErrInvalidID) {
			t.Fatalf("id %q: expected ErrInvalidID, got %v", id, err)
		}
	}
}

func TestUniquenessAcrossAddDelete(t *testing.T) {
	s := newTestStore(t)
	ops := []struct {
		add bool
		id  string
	}{
		{true, "a"}, {true, "b"}, {true, "a"}, {false, "a"}, {true, "a"}, {false, "b"}, {true, "c"}, {true, "c"},
	}
	for _, op := range ops {
		if op.add {
			_ = s.Add(op.id, 1, 1, value.NewMapping(), "h")
		} else {
			_ = s.Delete(op.id, true)
		}
	}
	ids := s.AllIDs()
	seen := map[string]bool{}
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %q in %v", id, ids)
		}
		seen[id] = true
	}
	slices.Sort(ids)
	if strings.Join(ids, ",") != "a,c" {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestPersistLoadIsConsistent(t *testing.T) {
	s := newTestStore(t)
	for i := range 5 {
		id := fmt.Sprintf("vid-%d", i)
		if err := s.Add(id, int64(i), int64(100+i), payload(t, fmt.Sprintf(`{"i":%d}`, i)), "h"); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if err := s.Update("vid-2", Update{Payload: payload(t, `{"i":22}`), UpdatedAt: 50, Hash: "h2"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := s.Delete("vid-0", true); err != nil {
		t.Fatalf("Delete archive: %v", err)
	}
	if err := s.Delete("vid-4", false); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.TagAdd("vid-1", "resync:mirror"); err != nil {
		t.Fatalf("TagAdd: %v", err)
	}
	if err := s.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	loaded := reopen(t, s)
	report, err := loaded.SelfCheck()
	if err != nil {
		t.Fatalf("SelfCheck: %v", err)
	}
	if !report.OK() {
		t.Fatalf("expected consistent store, got %s", report)
	}
	if loaded.Len() != 3 {
		t.Fatalf("expected 3 records, got %d", loaded.Len())
	}
	if !loaded.TagCheck("vid-1", "resync:mirror") {
		t.Fatal("tag lost across persist")
	}
	if h, _ := loaded.FetchHash("vid-2"); h != "h2" {
		t.Fatalf("hash lost across persist: %q", h)
	}
}

func TestTaggingIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Add("a", 1, 1, value.NewMapping(), "h"); err != nil {
		t.Fatal(err)
	}
	for range 2 {
		if err := s.TagAdd("a", "data_quality_issue"); err != nil {
			t.Fatalf("TagAdd: %v", err)
		}
	}
	rec, _ := s.Record("a")
	if len(rec.Tags) != 1 {
		t.Fatalf("expected single tag, got %v", rec.Tags)
	}
	if err := s.TagRemove("a", "never-added"); err != nil {
		t.Fatalf("removing absent tag should be a no-op, got %v", err)
	}
	if err := s.TagRemove("a", "data_quality_issue"); err != nil {
		t.Fatal(err)
	}
	if err := s.TagRemove("a", "data_quality_issue"); err != nil {
		t.Fatal(err)
	}
	if s.TagCheck("a", "data_quality_issue") {
		t.Fatal("tag should be gone")
	}
	if err := s.TagAdd("a", "  "); !errors.Is(err, ErrInvalidTag) {
		t.Fatalf("expected ErrInvalidTag, got %v", err)
	}
	if err := s.TagAdd("missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBulkTagOperations(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"a", "b", "c"} {
		if err := s.Add(id, 1, 1, value.NewMapping(), "h"); err != nil {
			t.Fatal(err)
		}
	}
	if n, _ := s.TagAddAll("resync:mirror"); n != 3 {
		t.Fatalf("expected 3 tagged, got %d", n)
	}
	if n, _ := s.TagAddAll("resync:mirror"); n != 0 {
		t.Fatalf("second TagAddAll should change nothing, got %d", n)
	}
	n, _ := s.TagAddWhere("remove_row", func(r Record) bool { return r.ID != "b" })
	if n != 2 {
		t.Fatalf("expected 2 matches, got %d", n)
	}
	if n, _ := s.TagReplaceAll("remove_row", "delete:mirror"); n != 2 {
		t.Fatalf("expected 2 replaced, got %d", n)
	}
	if got := s.Tagged("delete:mirror"); len(got) != 2 {
		t.Fatalf("unexpected tagged ids %v", got)
	}
	if replaced, _ := s.TagReplace("b", "absent", "x"); replaced {
		t.Fatal("replace of absent tag should do nothing")
	}
	if n, _ := s.TagRemoveAll("resync:mirror"); n != 3 {
		t.Fatalf("expected 3 untagged, got %d", n)
	}
	if counts := s.TagCounts(); counts["delete:mirror"] != 2 || len(counts) != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestUpdateLogsChangesWithUniqueTimestamps(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_123)
	s := newTestStore(t, WithClock(func() time.Time { return fixed }))
	if err := s.Add("a", 1, 1, payload(t, `{"v":1}`), "h1"); err != nil {
		t.Fatal(err)
	}
	for i := 2; i <= 3; i++ {
		diff := payload(t, fmt.Sprintf(`{"v":{"old":%d,"new":%d}}`, i-1, i))
		err := s.Update("a", Update{Payload: payload(t, fmt.Sprintf(`{"v":%d}`, i)), UpdatedAt: int64(i), Diff: diff, LogChanges: true})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
	rec, _ := s.Record("a")
	if rec.ChangelogRef != "a_changes.json" {
		t.Fatalf("unexpected changelog ref %q", rec.ChangelogRef)
	}
	entries, err := s.Changelog("a")
	if err != nil {
		t.Fatalf("Changelog: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Timestamp != fixed.UnixMilli() || entries[1].Timestamp != fixed.UnixMilli()+1 {
		t.Fatalf("expected bumped timestamps, got %d and %d", entries[0].Timestamp, entries[1].Timestamp)
	}
	if entries[1].Diff.String() != `{"v":{"old":2,"new":3}}` {
		t.Fatalf("unexpected diff %s", entries[1].Diff)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), "previous_versions", "a_changes.json")); err != nil {
		t.Fatalf("expected change log file: %v", err)
	}
}

func TestUpdateKeepsCreatedAndHashWhenUnset(t *testing.T) {
	s := newTestStore(t)
	if err := s.Add("a", 1, 10, value.NewMapping(), "h1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Update("a", Update{Payload: value.NewMapping(), UpdatedAt: 5}); err != nil {
		t.Fatal(err)
	}
	rec, _ := s.Record("a")
	if rec.CreatedAt != 10 || rec.ContentHash != "h1" || rec.UpdatedAt != 5 || rec.HasChangelog() {
		t.Fatalf("unexpected record %+v", rec)
	}
	if err := s.Update("missing", Update{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteArchiveDeduplicates(t *testing.T) {
	s := newTestStore(t)
	for range 3 {
		if err := s.Add("a", 1, 1, value.NewMapping(), "h"); err != nil {
			t.Fatal(err)
		}
		if err := s.Delete("a", true); err != nil {
			t.Fatal(err)
		}
	}
	for n := range 3 {
		path := filepath.Join(s.Dir(), "previous_versions", fmt.Sprintf("a_deleted_%d.json", n))
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected archive %s: %v", path, err)
		}
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), "current_data", "a.json")); !os.IsNotExist(err) {
		t.Fatalf("payload should be gone, err=%v", err)
	}
	if err := s.Delete("a", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSelfCheckReportsDivergence(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"a", "b"} {
		if err := s.Add(id, 1, 1, value.NewMapping(), "h"); err != nil {
			t.Fatal(err)
		}
	}
	dir := filepath.Join(s.Dir(), "current_data")
	if err := os.Remove(filepath.Join(dir, "a.json")); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"orphan.json", ".DS_Store", ".recordsync-tmp-123"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	report, err := s.SelfCheck()
	if err != nil {
		t.Fatal(err)
	}
	if report.OK() {
		t.Fatal("expected divergence")
	}
	if strings.Join(report.MissingPayloads, ",") != "a" || strings.Join(report.OrphanPayloads, ",") != "orphan" {
		t.Fatalf("unexpected report %s", report)
	}
	if report.Records != 2 || report.Payloads != 2 {
		t.Fatalf("unexpected counts %s", report)
	}
}

func TestOpenInconsistentFailOpenAndStrict(t *testing.T) {
	s := newTestStore(t)
	if err := s.Add("a", 1, 1, value.NewMapping(), "h"); err != nil {
		t.Fatal(err)
	}
	if err := s.Persist(); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(s.Dir(), "current_data", "a.json")); err != nil {
		t.Fatal(err)
	}
	_ = s.Unlock()

	loaded, err := Open(s.Dir())
	if err != nil {
		t.Fatalf("fail-open load should succeed: %v", err)
	}
	if loaded.Len() != 1 {
		t.Fatalf("expected catalog row to be kept, got %d", loaded.Len())
	}
	if _, err := Open(s.Dir(), WithStrictConsistency(true)); !errors.Is(err, ErrInconsistent) {
		t.Fatalf("expected ErrInconsistent, got %v", err)
	}
}

func TestOpenMissingCatalog(t *testing.T) {
	dir := t.TempDir()
	if _, err := Open(dir); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	s, err := Open(filepath.Join(dir, "store"), WithCreateIfMissing(true))
	if err != nil {
		t.Fatalf("Open create: %v", err)
	}
	if s.Len() != 0 {
		t.Fatal("expected empty store")
	}
	if _, err := os.Stat(filepath.Join(dir, "store", "catalog.tsv")); err != nil {
		t.Fatalf("expected catalog: %v", err)
	}
}

func TestInitializeRefusesExistingUnlessWipe(t *testing.T) {
	s := newTestStore(t)
	if err := s.Add("a", 1, 1, value.NewMapping(), "h"); err != nil {
		t.Fatal(err)
	}
	if err := s.Persist(); err != nil {
		t.Fatal(err)
	}
	_ = s.Unlock()

	if _, err := Initialize(s.Dir()); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
	wiped, err := Initialize(s.Dir(), WithWipe())
	if err != nil {
		t.Fatalf("Initialize wipe: %v", err)
	}
	defer wiped.Unlock()
	if wiped.Len() != 0 {
		t.Fatal("expected empty store after wipe")
	}
	entries, _ := os.ReadDir(filepath.Join(s.Dir(), "current_data"))
	if len(entries) != 0 {
		t.Fatalf("expected payloads removed, found %d", len(entries))
	}
}

func TestMutationsRequireLock(t *testing.T) {
	s := newTestStore(t)
	if err := s.Persist(); err != nil {
		t.Fatal(err)
	}
	_ = s.Unlock()
	if err := s.Add("a", 1, 1, value.NewMapping(), "h"); !errors.Is(err, ErrNotLocked) {
		t.Fatalf("expected ErrNotLocked, got %v", err)
	}
	if err := s.Persist(); !errors.Is(err, ErrNotLocked) {
		t.Fatalf("expected ErrNotLocked from Persist, got %v", err)
	}
}

func TestSecondWriterIsRejected(t *testing.T) {
	s := newTestStore(t)
	other, err := Open(s.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if err := other.TryLock(); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if err := other.Lock(ctx); err == nil {
		t.Fatal("expected Lock to give up when the context ends")
	}
	if err := s.Unlock(); err != nil {
		t.Fatal(err)
	}
	if err := other.TryLock(); err != nil {
		t.Fatalf("expected lock after release, got %v", err)
	}
	_ = other.Unlock()
}

func TestLockReloadsCatalogCommittedByAnotherWriter(t *testing.T) {
	s := newTestStore(t)
	stale, err := Open(s.Dir())
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Add("a", 10, 5, payload(t, `{"title":"A"}`), "h"); err != nil {
		t.Fatal(err)
	}
	if err := s.Persist(); err != nil {
		t.Fatal(err)
	}
	if err := s.Unlock(); err != nil {
		t.Fatal(err)
	}

	if err := stale.TryLock(); err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	if !stale.Contains("a") {
		t.Fatal("expected the committed record to be visible after locking")
	}
	if err := stale.Add("b", 20, 6, payload(t, `{"title":"B"}`), "h"); err != nil {
		t.Fatal(err)
	}
	if err := stale.Persist(); err != nil {
		t.Fatal(err)
	}
	if err := stale.Unlock(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Lock(ctx); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if !s.Contains("b") {
		t.Fatal("expected Lock to pick up the other writer's record")
	}

	reopened, err := Open(s.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if reopened.Len() != 2 {
		t.Fatalf("expected 2 records on disk, got %d", reopened.Len())
	}
	report, err := reopened.SelfCheck()
	if err != nil {
		t.Fatal(err)
	}
	if !report.OK() {
		t.Fatalf("expected consistent store, got %s", report)
	}
}

func TestSortAndRestartableIteration(t *testing.T) {
	s := newTestStore(t)
	data := map[string]int64{"a": 30, "b": 10, "c": 20}
	for _, id := range []string{"a", "b", "c"} {
		if err := s.Add(id, 100-data[id], data[id], value.NewMapping(), "h"); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Sort(ColumnCreatedAt, false); err != nil {
		t.Fatal(err)
	}
	collect := func() string {
		var ids []string
		for id := range s.IDs() {
			ids = append(ids, id)
		}
		return strings.Join(ids, ",")
	}
	if got := collect(); got != "a,c,b" {
		t.Fatalf("unexpected descending order %s", got)
	}
	if got := collect(); got != "a,c,b" {
		t.Fatalf("second iteration differs: %s", got)
	}
	if err := s.Sort("updated_at", true); err != nil {
		t.Fatal(err)
	}
	if got := collect(); got != "a,c,b" {
		t.Fatalf("unexpected ascending updated order %s", got)
	}
	if err := s.Sort("title", true); !errors.Is(err, ErrUnknownColumn) {
		t.Fatalf("expected ErrUnknownColumn, got %v", err)
	}

	for id, rec := range s.Records() {
		if id != rec.ID {
			t.Fatalf("pair mismatch %s/%s", id, rec.ID)
		}
		break
	}
}

func TestDeleteTagged(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"a", "b", "c"} {
		if err := s.Add(id, 1, 1, value.NewMapping(), "h"); err != nil {
			t.Fatal(err)
		}
	}
	_ = s.TagAdd("a", "remove_row")
	_ = s.TagAdd("c", "remove_row")

	trial, err := s.DeleteTagged("remove_row", true, true)
	if err != nil || len(trial) != 2 || s.Len() != 3 {
		t.Fatalf("trial run should only report: ids=%v len=%d err=%v", trial, s.Len(), err)
	}
	deleted, err := s.DeleteTagged("remove_row", true, false)
	if err != nil {
		t.Fatalf("DeleteTagged: %v", err)
	}
	slices.Sort(deleted)
	if strings.Join(deleted, ",") != "a,c" || s.Len() != 1 {
		t.Fatalf("unexpected deletion %v len=%d", deleted, s.Len())
	}
	loaded := reopen(t, s)
	if loaded.Len() != 1 || !loaded.Contains("b") {
		t.Fatal("deletion was not persisted")
	}
}

func TestLegacyCatalogLoads(t *testing.T) {
	dir := t.TempDir()
	for _, sub := range []string{"current_data", "previous_versions"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	legacy := "ID\tDATA-UPDATED\tDATA-CREATED\tFILE-CURRENT\tFILE-CHANGES\tHASH\tTAGS\n" +
		"v1\t1700000000.0\t1600000000\tv1.json\tnolog\tabc\t['repush', 'remove_row']\n"
	if err := os.WriteFile(filepath.Join(dir, "catalog.tsv"), []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "current_data", "v1.json"), []byte(`{"a":1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Open(dir, WithStrictConsistency(true))
	if err != nil {
		t.Fatalf("Open legacy: %v", err)
	}
	rec, ok := s.Record("v1")
	if !ok || rec.UpdatedAt != 1700000000 || !rec.HasTag("remove_row") || !rec.HasTag("repush") {
		t.Fatalf("unexpected legacy record %+v", rec)
	}
}

func TestCatalogFormat(t *testing.T) {
	s := newTestStore(t, WithClock(func() time.Time { return time.UnixMilli(1) }))
	if err := s.Add("vid-a", 1700000000, 1680000000, payload(t, `{"t":"a"}`), "h1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Add("vid-b", 1700000100, 1690000000, payload(t, `{"t":"b"}`), "h2"); err != nil {
		t.Fatal(err)
	}
	err := s.Update("vid-a", Update{
		Payload:    payload(t, `{"t":"a2"}`),
		UpdatedAt:  1700000000,
		Hash:       "h1-new",
		Diff:       payload(t, `{"t":{"old":"a","new":"a2"}}`),
		LogChanges: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	_ = s.TagAdd("vid-a", "resync:mirror")
	_ = s.TagAdd("vid-a", "source_changed")
	if err := s.Sort(ColumnCreatedAt, false); err != nil {
		t.Fatal(err)
	}
	if err := s.Persist(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(s.Dir(), "catalog.tsv"))
	if err != nil {
		t.Fatal(err)
	}
	g := goldie.New(t)
	g.Assert(t, "catalog", data)
}
