package stage

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"recordsync/internal/recordstore"
)

type fakeHandler struct {
	prepareErr error
	executeErr error
	report     Report
	logger     *slog.Logger
	executed   bool
}

func (f *fakeHandler) Name() string                       { return "fake" }
func (f *fakeHandler) Prepare(context.Context) error      { return f.prepareErr }
func (f *fakeHandler) HealthCheck(context.Context) Health { return Healthy("fake") }
func (f *fakeHandler) SetLogger(l *slog.Logger)           { f.logger = l }
func (f *fakeHandler) Execute(context.Context, *recordstore.Store) (Report, error) {
	f.executed = true
	return f.report, f.executeErr
}

func openStore(t *testing.T) *recordstore.Store {
	t.Helper()
	s, err := recordstore.Initialize(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Unlock() })
	return s
}

func TestRunExecutesAfterPrepare(t *testing.T) {
	h := &fakeHandler{report: Report{Synced: 2}}
	report, err := Run(context.Background(), nil, h, openStore(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Synced != 2 || !h.executed || h.logger == nil {
		t.Fatalf("unexpected result %+v executed=%v logger=%v", report, h.executed, h.logger != nil)
	}
}

func TestRunStopsOnPrepareFailure(t *testing.T) {
	h := &fakeHandler{prepareErr: errors.New("db unavailable")}
	if _, err := Run(context.Background(), nil, h, openStore(t)); err == nil {
		t.Fatal("expected prepare error")
	}
	if h.executed {
		t.Fatal("execute must not run after a failed prepare")
	}
}

func TestRunReturnsPartialReportOnFailure(t *testing.T) {
	h := &fakeHandler{report: Report{Synced: 1}, executeErr: errors.New("boom")}
	report, err := Run(context.Background(), nil, h, openStore(t))
	if err == nil || report.Synced != 1 {
		t.Fatalf("expected partial report with error, got %+v %v", report, err)
	}
}

func TestHealthConstructors(t *testing.T) {
	if h := Healthy("mirror"); !h.Ready || h.Name != "mirror" {
		t.Fatalf("unexpected %+v", h)
	}
	if h := Unhealthy("mirror", "locked"); h.Ready || h.Detail != "locked" {
		t.Fatalf("unexpected %+v", h)
	}
}
