package gate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testKey = "execution_may_go_on"

func TestMemoryGateDefaultsToContinue(t *testing.T) {
	g := New(ScopeJob, NewMemoryBackend(), testKey, nil)
	ctx := context.Background()

	v, err := g.Get(ctx)
	if err != nil || !v {
		t.Fatalf("missing key should read as continue, got %v err=%v", v, err)
	}
	if err := g.Set(ctx, false); err != nil {
		t.Fatal(err)
	}
	if g.MayContinue(ctx) {
		t.Fatal("expected stop after Set(false)")
	}
	if err := g.Set(ctx, true); err != nil {
		t.Fatal(err)
	}
	if !g.MayContinue(ctx) {
		t.Fatal("expected continue after Set(true)")
	}
}

func TestFileBackendCreatesEmptyObject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gates", "job_gate.json")
	g := New(ScopeJob, NewFileBackend(path), testKey, nil)

	if !g.MayContinue(context.Background()) {
		t.Fatal("fresh gate should continue")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected gate file to be created: %v", err)
	}
	if string(data) != "{}\n" {
		t.Fatalf("unexpected initial content %q", data)
	}
}

func TestFileBackendPreservesOtherKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gate.json")
	if err := os.WriteFile(path, []byte(`{"operator_note":"maintenance","other":true}`), 0o644); err != nil {
		t.Fatal(err)
	}
	backend := NewFileBackend(path)
	if err := backend.Store(testKey, false); err != nil {
		t.Fatal(err)
	}
	if v, found, err := backend.Load("other"); err != nil || !found || !v {
		t.Fatalf("other key lost: v=%v found=%v err=%v", v, found, err)
	}
	if v, found, err := backend.Load(testKey); err != nil || !found || v {
		t.Fatalf("unexpected stored value: v=%v found=%v err=%v", v, found, err)
	}
	if _, found, err := backend.Load("operator_note"); err == nil || !found {
		t.Fatalf("expected non-boolean key to fail, found=%v err=%v", found, err)
	}
}

func TestFileBackendNullDocumentIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gate.json")
	if err := os.WriteFile(path, []byte("null\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	g := New(ScopeJob, NewFileBackend(path), testKey, nil)
	if !g.MayContinue(context.Background()) {
		t.Fatal("null gate file should read as continue")
	}
	if err := g.Set(context.Background(), false); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if open, err := g.Get(context.Background()); err != nil || open {
		t.Fatalf("expected closed gate after Set(false), open=%v err=%v", open, err)
	}
}

func TestUnreadableGateContinues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gate.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	g := New(ScopeJob, NewFileBackend(path), testKey, nil)
	if _, err := g.Get(context.Background()); err == nil {
		t.Fatal("expected read error")
	}
	if !g.MayContinue(context.Background()) {
		t.Fatal("unreadable gate should mean continue")
	}
}

func TestCanceledContextStops(t *testing.T) {
	g := New(ScopeJob, NewMemoryBackend(), testKey, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if g.MayContinue(ctx) {
		t.Fatal("canceled context should read as stop")
	}
}

func TestPairStopAndEnable(t *testing.T) {
	dir := t.TempDir()
	p := Pair{
		Job:        New(ScopeJob, NewFileBackend(filepath.Join(dir, "job.json")), testKey, nil),
		Supervisor: New(ScopeSupervisor, NewFileBackend(filepath.Join(dir, "sup.json")), testKey, nil),
	}
	ctx := context.Background()
	if err := p.StopAll(ctx); err != nil {
		t.Fatal(err)
	}
	if p.Job.MayContinue(ctx) || p.Supervisor.MayContinue(ctx) {
		t.Fatal("expected both gates closed")
	}
	if err := p.EnableAll(ctx); err != nil {
		t.Fatal(err)
	}
	if !p.Scoped(ScopeJob).MayContinue(ctx) || !p.Scoped(ScopeSupervisor).MayContinue(ctx) {
		t.Fatal("expected both gates open")
	}
}

func TestParseScope(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Scope
		ok   bool
	}{
		{"job", ScopeJob, true},
		{"supervisor", ScopeSupervisor, true},
		{"daemon", "", false},
	} {
		got, err := ParseScope(tc.in)
		if (err == nil) != tc.ok || got != tc.want {
			t.Fatalf("ParseScope(%q) = %q, %v", tc.in, got, err)
		}
	}
}

func TestWatchSignalsOnRewrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sup.json")
	backend := NewFileBackend(path)
	if err := backend.Store(testKey, true); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := backend.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if err := backend.Store(testKey, false); err != nil {
		t.Fatal(err)
	}
	select {
	case <-events:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a wakeup after rewrite")
	}
	cancel()
	for range events {
	}
}
