package stats

import (
	"os"
	"path/filepath"
	"testing"

	"progsearch/internal/model"
)

func sampleArtifacts(runID string) RunArtifacts {
	return RunArtifacts{
		Config: RunConfig{
			RunID:          runID,
			Scape:          "target_value",
			Target:         17,
			PopulationSize: 20,
			MaxDepth:       3,
			Generations:    50,
			TournamentSize: 3,
			EliteCount:     2,
			Seed:           42,
			Workers:        4,
		},
		BestByGeneration:  []float64{-8, -3, 0},
		FinalBestFitness:  0,
		BestGeneration:    2,
		TerminationReason: "fitness_goal",
		Diagnostics: []model.GenerationRecord{
			{Generation: 0, BestFitness: -8, MeanFitness: -20, WorstFitness: -40, ValidPercent: 100, UniquePrograms: 18, OverallBestFitness: -8, BestRendered: "add(4, 5)", ElapsedMS: 2},
			{Generation: 1, BestFitness: -3, MeanFitness: -12, WorstFitness: -33, ValidPercent: 100, UniquePrograms: 19, OverallBestFitness: -3, BestRendered: "add(5, 9)", ElapsedMS: 2},
			{Generation: 2, BestFitness: 0, MeanFitness: -9, WorstFitness: -30, ValidPercent: 100, UniquePrograms: 20, OverallBestFitness: 0, BestRendered: "add(8, 9)", ElapsedMS: 3},
		},
		TopPrograms: []TopProgram{{
			Rank:     1,
			Fitness:  0,
			Rendered: "add(8, 9)",
			Program:  model.ProgramRecord{ID: "p1"},
		}},
	}
}

func TestWriteAndExportRunArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "exports")
	runID := "run-123"

	runDir, err := WriteRunArtifacts(baseDir, sampleArtifacts(runID))
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}

	files := []string{"config.json", "fitness_history.json", "top_programs.json", "generation_diagnostics.json", "fitness_series.csv", "generation_diagnostics.csv"}
	for _, file := range files {
		if _, err := os.Stat(filepath.Join(runDir, file)); err != nil {
			t.Fatalf("expected file %s: %v", file, err)
		}
	}

	exportedDir, err := ExportRunArtifacts(baseDir, runID, outDir)
	if err != nil {
		t.Fatalf("export artifacts: %v", err)
	}
	for _, file := range files {
		if _, err := os.Stat(filepath.Join(exportedDir, file)); err != nil {
			t.Fatalf("expected exported file %s: %v", file, err)
		}
	}
}

func TestWriteRunArtifactsRequiresRunID(t *testing.T) {
	artifacts := sampleArtifacts("")
	if _, err := WriteRunArtifacts(t.TempDir(), artifacts); err == nil {
		t.Fatal("expected error for empty run id")
	}
}

func TestRunConfigRoundTrip(t *testing.T) {
	baseDir := t.TempDir()
	runID := "run-cfg"

	goal := 0.0
	want := RunConfig{
		RunID:            runID,
		Scape:            "quadratic_regression",
		SampleCount:      20,
		PopulationSize:   40,
		MaxDepth:         5,
		Generations:      100,
		TournamentSize:   4,
		EliteCount:       3,
		CrossoverRate:    0.2,
		FitnessGoal:      &goal,
		StagnationWindow: 10,
		RestartAfter:     5,
		Workers:          8,
		Seed:             7,
		WarmStart:        "add(x, 1)",
	}
	if err := WriteRunConfig(baseDir, runID, want); err != nil {
		t.Fatalf("write config: %v", err)
	}

	got, ok, err := ReadRunConfig(baseDir, runID)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !ok {
		t.Fatal("config not found")
	}
	if got.Scape != want.Scape || got.Seed != want.Seed || got.WarmStart != want.WarmStart {
		t.Fatalf("config mismatch: %+v", got)
	}
	if got.FitnessGoal == nil || *got.FitnessGoal != 0 {
		t.Fatalf("fitness goal not preserved: %v", got.FitnessGoal)
	}
}

func TestWriteRunConfigRejectsIDMismatch(t *testing.T) {
	err := WriteRunConfig(t.TempDir(), "run-a", RunConfig{RunID: "run-b"})
	if err == nil {
		t.Fatal("expected run id mismatch error")
	}
}

func TestReadRunConfigMissing(t *testing.T) {
	_, ok, err := ReadRunConfig(t.TempDir(), "nope")
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if ok {
		t.Fatal("missing config reported as found")
	}
}

func TestRunIndexAppendAndOrder(t *testing.T) {
	baseDir := t.TempDir()

	entries := []RunIndexEntry{
		{RunID: "run-1", Scape: "target_value", FinalBestFitness: -3, CreatedAtUTC: "2026-08-30T10:00:00Z"},
		{RunID: "run-2", Scape: "target_value", FinalBestFitness: 0, CreatedAtUTC: "2026-08-30T11:00:00Z"},
		{RunID: "run-3", Scape: "quadratic_regression", FinalBestFitness: -1, CreatedAtUTC: "2026-08-30T09:00:00Z"},
	}
	for _, entry := range entries {
		if err := AppendRunIndex(baseDir, entry); err != nil {
			t.Fatalf("append %s: %v", entry.RunID, err)
		}
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list index: %v", err)
	}
	if len(index) != 3 {
		t.Fatalf("got %d entries, want 3", len(index))
	}
	if index[0].RunID != "run-2" || index[1].RunID != "run-1" || index[2].RunID != "run-3" {
		t.Fatalf("unexpected order: %s, %s, %s", index[0].RunID, index[1].RunID, index[2].RunID)
	}
}

func TestRunIndexReplacesExistingEntry(t *testing.T) {
	baseDir := t.TempDir()

	first := RunIndexEntry{RunID: "run-1", TerminationReason: "cancelled", CreatedAtUTC: "2026-08-30T10:00:00Z"}
	if err := AppendRunIndex(baseDir, first); err != nil {
		t.Fatalf("append: %v", err)
	}
	updated := first
	updated.TerminationReason = "fitness_goal"
	updated.FinalBestFitness = 0
	if err := AppendRunIndex(baseDir, updated); err != nil {
		t.Fatalf("append update: %v", err)
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list index: %v", err)
	}
	if len(index) != 1 {
		t.Fatalf("got %d entries, want 1", len(index))
	}
	if index[0].TerminationReason != "fitness_goal" {
		t.Fatalf("entry not replaced: %+v", index[0])
	}
}

func TestListRunIndexEmptyDir(t *testing.T) {
	index, err := ListRunIndex(t.TempDir())
	if err != nil {
		t.Fatalf("list index: %v", err)
	}
	if len(index) != 0 {
		t.Fatalf("expected empty index, got %d entries", len(index))
	}
}

func TestReadTopPrograms(t *testing.T) {
	baseDir := t.TempDir()
	runID := "run-top"
	if _, err := WriteRunArtifacts(baseDir, sampleArtifacts(runID)); err != nil {
		t.Fatalf("write artifacts: %v", err)
	}

	top, ok, err := ReadTopPrograms(baseDir, runID)
	if err != nil {
		t.Fatalf("read top programs: %v", err)
	}
	if !ok {
		t.Fatal("top programs not found")
	}
	if len(top) != 1 || top[0].Rendered != "add(8, 9)" {
		t.Fatalf("unexpected top programs: %+v", top)
	}
}
