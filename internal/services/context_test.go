package services_test

import (
	"context"
	"testing"

	"recordsync/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithEntityID(ctx, "vid-42")
	ctx = services.WithPhase(ctx, "reconcile")
	ctx = services.WithRunID(ctx, "run-123")
	ctx = services.WithJob(ctx, "frequent")

	if id, ok := services.EntityIDFromContext(ctx); !ok || id != "vid-42" {
		t.Fatalf("unexpected entity id: %v %v", id, ok)
	}
	if phase, ok := services.PhaseFromContext(ctx); !ok || phase != "reconcile" {
		t.Fatalf("unexpected phase: %v %v", phase, ok)
	}
	if rid, ok := services.RunIDFromContext(ctx); !ok || rid != "run-123" {
		t.Fatalf("unexpected run id: %v %v", rid, ok)
	}
	if job, ok := services.JobFromContext(ctx); !ok || job != "frequent" {
		t.Fatalf("unexpected job: %v %v", job, ok)
	}
}

func TestPhaseBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithPhase(ctx, "")
	if _, ok := services.PhaseFromContext(ctx); ok {
		t.Fatal("expected no phase value")
	}
}
