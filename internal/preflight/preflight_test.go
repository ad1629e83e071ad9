package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"recordsync/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckGateFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gate.json")

	if r := CheckGateFile("gate", path, "go"); !r.Passed || !strings.Contains(r.Detail, "absent") {
		t.Fatalf("missing gate file should pass as open, got %+v", r)
	}

	if err := os.WriteFile(path, []byte(`{"go": false, "other": 1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if r := CheckGateFile("gate", path, "go"); !r.Passed || !strings.Contains(r.Detail, "closed") {
		t.Fatalf("expected closed gate to pass with detail, got %+v", r)
	}

	if err := os.WriteFile(path, []byte(`{"go": "yes"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if r := CheckGateFile("gate", path, "go"); r.Passed {
		t.Fatal("expected failure for non-boolean gate value")
	}

	if err := os.WriteFile(path, []byte(`[true]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if r := CheckGateFile("gate", path, "go"); r.Passed {
		t.Fatal("expected failure for non-object gate file")
	}
}

func TestCheckStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if r := CheckStore(cfg); r.Passed || !strings.Contains(r.Detail, "init") {
		t.Fatalf("expected not-initialized failure, got %+v", r)
	}

	testsupport.MustInitStore(t, cfg)
	if r := CheckStore(cfg); !r.Passed {
		t.Fatalf("expected empty store to pass, got %+v", r)
	}

	if err := os.WriteFile(filepath.Join(cfg.Paths.DataDir, "current_data", "stray.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if r := CheckStore(cfg); r.Passed {
		t.Fatal("expected orphan payload to fail the self-check")
	}
}

func TestCheckSource(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithJob("daily", "feed", 60))
	job := cfg.Jobs[0]
	if r := CheckSource(job); r.Passed {
		t.Fatal("expected failure for missing source directory")
	}

	testsupport.WriteSnapshot(t, filepath.Join(job.Source, "a.json"), testsupport.Entity("a", 1, "a"))
	r := CheckSource(job)
	if !r.Passed {
		t.Fatalf("expected pass, got %+v", r)
	}
	if !strings.Contains(r.Detail, "1 files") {
		t.Fatalf("unexpected detail %q", r.Detail)
	}
}

func TestCheckMirror(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirror.db")
	r := CheckMirror(context.Background(), path)
	if !r.Passed {
		t.Fatalf("expected fresh mirror to pass, got %+v", r)
	}
	if !strings.Contains(r.Detail, "schema v1") {
		t.Fatalf("unexpected detail %q", r.Detail)
	}
}

func TestCheckNtfy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"healthy":true}`))
	}))
	defer srv.Close()

	if r := CheckNtfy(context.Background(), srv.URL+"/recordsync"); !r.Passed {
		t.Fatalf("expected pass, got %+v", r)
	}
	if r := CheckNtfy(context.Background(), "not a url"); r.Passed {
		t.Fatal("expected failure for invalid topic url")
	}
}

func TestCheckNtfy_Unhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"healthy":false}`))
	}))
	defer srv.Close()

	if r := CheckNtfy(context.Background(), srv.URL+"/topic"); r.Passed {
		t.Fatal("expected failure for unhealthy server")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_InitializedConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.MustInitStore(t, cfg)

	results := RunAll(context.Background(), cfg)
	// directories, two gates and the store
	if len(results) != 6 {
		t.Fatalf("expected 6 results, got %d", len(results))
	}
	if failed := Blocking(results); len(failed) != 0 {
		t.Fatalf("unexpected blocking failures: %+v", failed)
	}
}

func TestBlockingSkipsOptional(t *testing.T) {
	results := []Result{
		{Name: "a", Passed: true},
		{Name: "b", Optional: true},
		{Name: "c"},
	}
	failed := Blocking(results)
	if len(failed) != 1 || failed[0].Name != "c" {
		t.Fatalf("unexpected blocking set %+v", failed)
	}
}

func TestProbeSupervisor(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if probe := ProbeSupervisor(cfg); probe.Running {
		t.Fatal("expected no supervisor running")
	}

	lock := flock.New(cfg.LockPath())
	if ok, err := lock.TryLock(); err != nil || !ok {
		t.Fatalf("take lock: ok=%v err=%v", ok, err)
	}
	defer lock.Unlock()

	if probe := ProbeSupervisor(cfg); !probe.Running {
		t.Fatal("expected probe to see the held lock")
	}
}
