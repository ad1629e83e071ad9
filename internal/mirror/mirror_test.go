package mirror

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recordsync/internal/gate"
	"recordsync/internal/reconcile"
	"recordsync/internal/recordstore"
	"recordsync/internal/value"
)

func newFixture(t *testing.T) (*recordstore.Store, *Stage) {
	t.Helper()
	store, err := recordstore.Initialize(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Unlock() })

	st := NewStage(filepath.Join(t.TempDir(), "mirror.db"), nil, nil)
	require.NoError(t, st.Prepare(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return store, st
}

func addTagged(t *testing.T, store *recordstore.Store, id, raw string, tags ...string) {
	t.Helper()
	v, err := value.Parse([]byte(raw))
	require.NoError(t, err)
	require.NoError(t, store.Add(id, 10, 5, v, "hash-"+id))
	for _, tag := range tags {
		require.NoError(t, store.TagAdd(id, tag))
	}
}

func TestOpenDBMigrates(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "mirror.db")
	db, err := OpenDB(ctx, path)
	require.NoError(t, err)
	version, err := db.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	require.NoError(t, db.Close())

	reopened, err := OpenDB(ctx, path)
	require.NoError(t, err, "second open must be a no-op migration")
	require.NoError(t, reopened.Close())
}

func TestExecuteSyncsTaggedRecords(t *testing.T) {
	store, st := newFixture(t)
	ctx := context.Background()
	resync := reconcile.ResyncTag(Target)
	addTagged(t, store, "a", `{"title":"A"}`, resync, reconcile.TagDataQuality)
	addTagged(t, store, "b", `{"title":"B"}`)

	report, err := st.Execute(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Synced)

	row, ok, err := st.DB().Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"title":"A"}`, row.Payload)
	assert.Equal(t, "hash-a", row.ContentHash)
	assert.False(t, store.TagCheck("a", resync))
	assert.False(t, store.TagCheck("a", reconcile.TagDataQuality), "issue tag clears after a successful sync")

	_, ok, err = st.DB().Get(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok, "untagged records are not mirrored")
}

func TestExecuteFlagsNonObjectPayloads(t *testing.T) {
	store, st := newFixture(t)
	resync := reconcile.ResyncTag(Target)
	addTagged(t, store, "list", `[1,2,3]`, resync)

	report, err := st.Execute(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Issues)
	assert.True(t, store.TagCheck("list", reconcile.TagDataQuality))
	assert.True(t, store.TagCheck("list", resync), "resync tag kept until the record can be mirrored")
}

func TestExecuteAppliesDeletions(t *testing.T) {
	store, st := newFixture(t)
	ctx := context.Background()
	addTagged(t, store, "gone", `{"x":1}`, reconcile.ResyncTag(Target))
	_, err := st.Execute(ctx, store)
	require.NoError(t, err)

	require.NoError(t, store.TagAdd("gone", reconcile.TagMarkedForRemoval))
	require.NoError(t, store.TagAdd("gone", reconcile.DeleteTag(Target)))
	require.NoError(t, store.TagAdd("gone", reconcile.ResyncTag(Target)))

	report, err := st.Execute(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted)
	assert.Zero(t, report.Synced, "records marked for removal are not re-synced")
	assert.False(t, store.TagCheck("gone", reconcile.DeleteTag(Target)))

	n, err := st.DB().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExecuteStopsOnGate(t *testing.T) {
	store, st := newFixture(t)
	g := gate.New(gate.ScopeJob, gate.NewMemoryBackend(), "go", nil)
	st.gate = g
	addTagged(t, store, "a", `{}`, reconcile.ResyncTag(Target))
	require.NoError(t, g.Set(context.Background(), false))

	report, err := st.Execute(context.Background(), store)
	assert.True(t, errors.Is(err, reconcile.ErrGateTripped))
	assert.Zero(t, report.Synced)
}

func TestHealthCheck(t *testing.T) {
	_, st := newFixture(t)
	assert.True(t, st.HealthCheck(context.Background()).Ready)
}
