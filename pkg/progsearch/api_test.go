package progsearch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"progsearch/internal/stats"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(Options{
		StoreKind:    "memory",
		ArtifactsDir: filepath.Join(t.TempDir(), "runs"),
		ExportsDir:   filepath.Join(t.TempDir(), "exports"),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Errorf("close client: %v", err)
		}
	})
	return client
}

func targetValueRequest() RunRequest {
	goal := 0.0
	return RunRequest{
		Scape:          "target_value",
		Target:         17,
		Population:     20,
		MaxDepth:       3,
		Generations:    50,
		Seed:           42,
		Workers:        2,
		TournamentSize: 3,
		EliteCount:     2,
		FitnessGoal:    &goal,
	}
}

func TestClientRunPersistsRun(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	summary, err := client.Run(ctx, targetValueRequest())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if summary.RunID == "" {
		t.Fatal("empty run id")
	}
	if summary.TerminationReason != "fitness_goal" {
		t.Fatalf("termination = %s, want fitness_goal (best %v)", summary.TerminationReason, summary.FinalBestFitness)
	}
	if summary.FinalBestFitness != 0 {
		t.Fatalf("final best = %v, want 0", summary.FinalBestFitness)
	}
	if summary.BestRendered == "" {
		t.Fatal("empty best rendering")
	}
	if len(summary.BestByGeneration) == 0 {
		t.Fatal("empty fitness history")
	}

	for _, file := range []string{"config.json", "fitness_history.json", "top_programs.json", "generation_diagnostics.json", "fitness_series.csv", "generation_diagnostics.csv"} {
		if _, err := os.Stat(filepath.Join(summary.ArtifactsDir, file)); err != nil {
			t.Fatalf("expected artifact %s: %v", file, err)
		}
	}
}

func TestClientRunThenQueries(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	summary, err := client.Run(ctx, targetValueRequest())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	runs, err := client.Runs(ctx, RunsRequest{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	if runs[0].RunID != summary.RunID || runs[0].Scape != "target_value" {
		t.Fatalf("unexpected run item: %+v", runs[0])
	}

	history, err := client.FitnessHistory(ctx, FitnessHistoryRequest{RunID: summary.RunID})
	if err != nil {
		t.Fatalf("fitness history: %v", err)
	}
	if diff := cmp.Diff(summary.BestByGeneration, history); diff != "" {
		t.Fatalf("history mismatch (-want +got):\n%s", diff)
	}

	diagnostics, err := client.Diagnostics(ctx, DiagnosticsRequest{Latest: true})
	if err != nil {
		t.Fatalf("diagnostics: %v", err)
	}
	if len(diagnostics) != len(history) {
		t.Fatalf("got %d diagnostics, want %d", len(diagnostics), len(history))
	}
	for i, rec := range diagnostics {
		if rec.Generation != i {
			t.Fatalf("diagnostic %d reports generation %d", i, rec.Generation)
		}
	}

	best, err := client.BestProgram(ctx, BestProgramRequest{Latest: true})
	if err != nil {
		t.Fatalf("best program: %v", err)
	}
	if best.RunID != summary.RunID {
		t.Fatalf("best program run id = %s, want %s", best.RunID, summary.RunID)
	}
	if best.Fitness != 0 {
		t.Fatalf("best fitness = %v, want 0", best.Fitness)
	}
	if best.Rendered != summary.BestRendered {
		t.Fatalf("rendered mismatch: %s vs %s", best.Rendered, summary.BestRendered)
	}
}

func TestClientRunQuadraticRegression(t *testing.T) {
	client := newTestClient(t)

	summary, err := client.Run(context.Background(), RunRequest{
		Scape:       "quadratic_regression",
		SampleCount: 10,
		Population:  30,
		MaxDepth:    4,
		Generations: 10,
		Seed:        7,
		Workers:     2,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.TerminationReason != "generation_limit" {
		t.Fatalf("termination = %s, want generation_limit", summary.TerminationReason)
	}
	if len(summary.BestByGeneration) != 10 {
		t.Fatalf("recorded %d generations, want 10", len(summary.BestByGeneration))
	}
}

func TestClientRunRejectsUnknownScape(t *testing.T) {
	client := newTestClient(t)
	if _, err := client.Run(context.Background(), RunRequest{Scape: "flatland"}); err == nil {
		t.Fatal("expected error for unknown scape")
	}
}

func TestClientRunRejectsUnknownSelection(t *testing.T) {
	client := newTestClient(t)
	req := targetValueRequest()
	req.Selection = "roulette"
	if _, err := client.Run(context.Background(), req); err == nil {
		t.Fatal("expected error for unknown selection strategy")
	}
}

func TestClientRunsLimit(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	req := targetValueRequest()
	req.Generations = 3
	req.FitnessGoal = nil
	for seed := int64(1); seed <= 3; seed++ {
		req.Seed = seed
		if _, err := client.Run(ctx, req); err != nil {
			t.Fatalf("run seed %d: %v", seed, err)
		}
	}

	runs, err := client.Runs(ctx, RunsRequest{Limit: 2})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
}

func TestClientExportLatest(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	summary, err := client.Run(ctx, targetValueRequest())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	exported, err := client.Export(ctx, ExportRequest{Latest: true})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if exported.RunID != summary.RunID {
		t.Fatalf("exported run id = %s, want %s", exported.RunID, summary.RunID)
	}
	if _, err := os.Stat(filepath.Join(exported.Directory, "config.json")); err != nil {
		t.Fatalf("expected exported config: %v", err)
	}
}

func TestClientRunIDResolution(t *testing.T) {
	client := newTestClient(t)

	if _, err := client.Export(context.Background(), ExportRequest{RunID: "a", Latest: true}); err == nil {
		t.Fatal("expected error for run id plus latest")
	}
	if _, err := client.Export(context.Background(), ExportRequest{}); err == nil {
		t.Fatal("expected error for neither run id nor latest")
	}
	if _, err := client.FitnessHistory(context.Background(), FitnessHistoryRequest{Latest: true}); err == nil {
		t.Fatal("expected error with no runs available")
	}
}

func TestClientBestProgramMissingRun(t *testing.T) {
	client := newTestClient(t)
	if _, err := client.BestProgram(context.Background(), BestProgramRequest{RunID: "nope"}); err == nil {
		t.Fatal("expected error for missing run")
	}
}

func TestClientBenchmark(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	goal := 0.0
	result, err := client.Benchmark(ctx, BenchmarkRequest{
		Scape:       "target_value",
		Target:      17,
		Population:  20,
		MaxDepth:    3,
		Generations: 50,
		Seeds:       []int64{41, 42},
		Workers:     2,
		EliteCount:  2,
		FitnessGoal: &goal,
	})
	if err != nil {
		t.Fatalf("benchmark: %v", err)
	}

	if result.Summary.SolvedRuns < 1 {
		t.Fatalf("no seed solved the scape: %+v", result.Summary.Seeds)
	}
	if result.Summary.BestMax != 0 {
		t.Fatalf("best max = %v, want 0", result.Summary.BestMax)
	}
	if len(result.Summary.Seeds) != 2 {
		t.Fatalf("got %d seed results, want 2", len(result.Summary.Seeds))
	}
	for _, file := range []string{"benchmark_summary.json", "benchmark_series.csv", "config.json"} {
		if _, err := os.Stat(filepath.Join(result.Directory, file)); err != nil {
			t.Fatalf("expected benchmark file %s: %v", file, err)
		}
	}

	series, ok, err := stats.ReadBenchmarkSeries(filepath.Dir(result.Directory), result.RunID)
	if err != nil || !ok {
		t.Fatalf("read series: ok=%v err=%v", ok, err)
	}
	if len(series) != 2 {
		t.Fatalf("got %d series, want 2", len(series))
	}

	// Each seed also gets its own persisted run.
	runs, err := client.Runs(ctx, RunsRequest{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
}

func TestRunDefaultsHonorExplicitZeroElites(t *testing.T) {
	req := RunRequest{Scape: "target_value", Population: 40}
	applyRunDefaults(&req)
	if req.EliteCount != 0 {
		t.Fatalf("elite count = %d, want 0 by default", req.EliteCount)
	}

	req = RunRequest{Scape: "target_value", Population: 40, EliteCount: -3}
	applyRunDefaults(&req)
	if req.EliteCount != 0 {
		t.Fatalf("negative elite count = %d, want clamp to 0", req.EliteCount)
	}

	req = RunRequest{Scape: "target_value", Population: 40, EliteCount: 4}
	applyRunDefaults(&req)
	if req.EliteCount != 4 {
		t.Fatalf("elite count = %d, want explicit 4 kept", req.EliteCount)
	}
}

func TestClientRunWithoutElites(t *testing.T) {
	client := newTestClient(t)

	req := targetValueRequest()
	req.EliteCount = 0
	req.FitnessGoal = nil
	req.Generations = 3

	summary, err := client.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.TerminationReason != "generation_limit" {
		t.Fatalf("termination = %s, want generation_limit", summary.TerminationReason)
	}

	cfg, ok, err := stats.ReadRunConfig(client.artifactsDir, summary.RunID)
	if err != nil || !ok {
		t.Fatalf("read run config: ok=%t err=%v", ok, err)
	}
	if cfg.EliteCount != 0 {
		t.Fatalf("persisted elite count = %d, want 0", cfg.EliteCount)
	}
}

func TestClientBenchmarkRequiresSeeds(t *testing.T) {
	client := newTestClient(t)
	if _, err := client.Benchmark(context.Background(), BenchmarkRequest{Scape: "target_value"}); err == nil {
		t.Fatal("expected error for missing seeds")
	}
}
