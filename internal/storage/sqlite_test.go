//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"progsearch/internal/model"
)

func newInitializedSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "progsearch.db"))
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func TestSQLiteStoreRequiresPath(t *testing.T) {
	store := NewSQLiteStore("")
	if err := store.Init(context.Background()); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestSQLiteStoreRequiresInit(t *testing.T) {
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "progsearch.db"))
	if _, _, err := store.GetProgram(context.Background(), "p1"); err == nil {
		t.Fatal("expected error before Init")
	}
}

func TestSQLiteStoreProgramRoundTrip(t *testing.T) {
	store := newInitializedSQLiteStore(t)
	ctx := context.Background()

	want := sampleProgram("p1")
	if err := store.SaveProgram(ctx, want); err != nil {
		t.Fatalf("save program: %v", err)
	}

	got, ok, err := store.GetProgram(ctx, "p1")
	if err != nil {
		t.Fatalf("get program: %v", err)
	}
	if !ok {
		t.Fatal("program not found")
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("program mismatch (-want +got):\n%s", diff)
	}

	if _, ok, err := store.GetProgram(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing program: ok=%v err=%v", ok, err)
	}
}

func TestSQLiteStoreRunRoundTripAndOrder(t *testing.T) {
	store := newInitializedSQLiteStore(t)
	ctx := context.Background()

	for _, run := range []struct{ id, created string }{
		{"run-old", "2026-08-29T10:00:00Z"},
		{"run-new", "2026-08-30T10:00:00Z"},
	} {
		if err := store.SaveRun(ctx, sampleRun(run.id, run.created)); err != nil {
			t.Fatalf("save %s: %v", run.id, err)
		}
	}

	got, ok, err := store.GetRun(ctx, "run-new")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if !ok {
		t.Fatal("run not found")
	}
	if got.Scape != "target_value" || got.Seed != 42 {
		t.Fatalf("unexpected run: %+v", got)
	}

	listed, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != "run-new" || listed[1].ID != "run-old" {
		t.Fatalf("unexpected order: %+v", listed)
	}
}

func TestSQLiteStoreSaveRunUpserts(t *testing.T) {
	store := newInitializedSQLiteStore(t)
	ctx := context.Background()

	run := sampleRun("run-1", "2026-08-30T10:00:00Z")
	run.TerminationReason = "cancelled"
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("save run: %v", err)
	}
	run.TerminationReason = "fitness_goal"
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("save run update: %v", err)
	}

	got, ok, err := store.GetRun(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get run: ok=%v err=%v", ok, err)
	}
	if got.TerminationReason != "fitness_goal" {
		t.Fatalf("run not updated: %+v", got)
	}
}

func TestSQLiteStoreHistoryAndDiagnostics(t *testing.T) {
	store := newInitializedSQLiteStore(t)
	ctx := context.Background()

	history := []float64{-8, -3, 0}
	if err := store.SaveFitnessHistory(ctx, "run-1", history); err != nil {
		t.Fatalf("save history: %v", err)
	}
	gotHistory, ok, err := store.GetFitnessHistory(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get history: ok=%v err=%v", ok, err)
	}
	if diff := cmp.Diff(history, gotHistory); diff != "" {
		t.Fatalf("history mismatch (-want +got):\n%s", diff)
	}

	diagnostics := []model.GenerationRecord{
		{Generation: 0, BestFitness: -8, MeanFitness: -20, WorstFitness: -44, ValidPercent: 100, UniquePrograms: 18, OverallBestFitness: -8, BestRendered: "add(4, 5)", ElapsedMS: 2},
		{Generation: 1, BestFitness: 0, MeanFitness: -9, WorstFitness: -30, ValidPercent: 100, UniquePrograms: 20, OverallBestFitness: 0, BestRendered: "add(8, 9)", ElapsedMS: 3},
	}
	if err := store.SaveGenerationDiagnostics(ctx, "run-1", diagnostics); err != nil {
		t.Fatalf("save diagnostics: %v", err)
	}
	gotDiagnostics, ok, err := store.GetGenerationDiagnostics(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get diagnostics: ok=%v err=%v", ok, err)
	}
	if diff := cmp.Diff(diagnostics, gotDiagnostics); diff != "" {
		t.Fatalf("diagnostics mismatch (-want +got):\n%s", diff)
	}

	if _, ok, err := store.GetFitnessHistory(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing history: ok=%v err=%v", ok, err)
	}
}
