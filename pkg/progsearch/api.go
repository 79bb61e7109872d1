package progsearch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"progsearch/internal/evo"
	"progsearch/internal/lang"
	"progsearch/internal/model"
	"progsearch/internal/program"
	"progsearch/internal/scape"
	"progsearch/internal/stats"
	"progsearch/internal/storage"
)

const (
	defaultArtifactsDir = "runs"
	defaultExportsDir   = "exports"
	defaultDBPath       = "progsearch.db"
)

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
}

// Client is the embedding-friendly front door: it owns a store and an
// artifacts directory and exposes the same operations the CLI does.
type Client struct {
	store       storage.Store
	initialized bool

	artifactsDir string
	exportsDir   string
}

type RunRequest struct {
	Scape            string
	Target           float64
	SampleCount      int
	Population       int
	MaxDepth         int
	Generations      int
	Seed             int64
	Workers          int
	Selection        string
	TournamentSize   int
	EliteCount       int
	CrossoverRate    float64
	FitnessGoal      *float64
	StagnationWindow int
	RestartAfter     int
	WarmStart        *program.Program
}

type RunSummary struct {
	RunID             string
	ArtifactsDir      string
	BestByGeneration  []float64
	FinalBestFitness  float64
	BestGeneration    int
	TerminationReason string
	BestRendered      string
	BestProgramID     string
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID             string
	CreatedAtUTC      string
	Scape             string
	Seed              int64
	Population        int
	Generations       int
	TerminationReason string
	FinalBestFitness  float64
	BestRendered      string
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type FitnessHistoryRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type DiagnosticsRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type BestProgramRequest struct {
	RunID  string
	Latest bool
}

type BestProgramItem struct {
	RunID    string
	Fitness  float64
	Rendered string
	Program  model.ProgramRecord
}

type BenchmarkRequest struct {
	Scape       string
	Target      float64
	SampleCount int
	Population  int
	MaxDepth    int
	Generations int
	Seeds       []int64
	Workers     int
	EliteCount  int
	FitnessGoal *float64
}

type BenchmarkResult struct {
	RunID     string
	Directory string
	Summary   stats.BenchmarkSummary
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

// Run executes one search and persists its record, history,
// diagnostics, best program, and artifacts directory.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	applyRunDefaults(&req)
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}

	result, err := c.search(ctx, req)
	if err != nil {
		return RunSummary{}, err
	}
	return c.persistRun(ctx, req, result)
}

// search executes the evolutionary loop without touching the store or
// the artifacts directory. req must already carry defaults.
func (c *Client) search(ctx context.Context, req RunRequest) (evo.RunResult, error) {
	sc, err := scape.Resolve(req.Scape, scape.Params{
		Target:      req.Target,
		SampleCount: req.SampleCount,
	})
	if err != nil {
		return evo.RunResult{}, err
	}
	registry, err := registryForScape(req.Scape)
	if err != nil {
		return evo.RunResult{}, err
	}
	selector, err := selectorFromName(req.Selection, req.TournamentSize)
	if err != nil {
		return evo.RunResult{}, err
	}

	cfg := evo.MonitorConfig{
		Registry:         registry,
		Scape:            sc,
		ReturnType:       lang.TypeNumber,
		PopulationSize:   req.Population,
		MaxDepth:         req.MaxDepth,
		Generations:      req.Generations,
		TournamentSize:   req.TournamentSize,
		EliteCount:       req.EliteCount,
		Selector:         selector,
		CrossoverRate:    req.CrossoverRate,
		StagnationWindow: req.StagnationWindow,
		RestartAfter:     req.RestartAfter,
		Workers:          req.Workers,
		Seed:             req.Seed,
		WarmStart:        req.WarmStart,
	}
	if req.FitnessGoal != nil {
		cfg.FitnessGoal = *req.FitnessGoal
		cfg.FitnessGoalSet = true
	}

	monitor, err := evo.NewMonitor(cfg)
	if err != nil {
		return evo.RunResult{}, err
	}
	return monitor.Run(ctx)
}

func (c *Client) persistRun(ctx context.Context, req RunRequest, result evo.RunResult) (RunSummary, error) {
	now := time.Now().UTC()
	runID := fmt.Sprintf("%s-%s", req.Scape, uuid.NewString())
	bestProgramID := "best-" + runID

	bestRendered := ""
	if result.BestProgram != nil {
		bestRendered = result.BestProgram.Render()
		if err := c.store.SaveProgram(ctx, program.ToRecord(bestProgramID, result.BestProgram)); err != nil {
			return RunSummary{}, err
		}
	}

	diagnostics := diagnosticsFromSteps(result.Diagnostics)
	if err := c.store.SaveRun(ctx, model.RunRecord{
		VersionedRecord:   versionedRecord(),
		ID:                runID,
		CreatedAtUTC:      now.Format(time.RFC3339Nano),
		Scape:             req.Scape,
		Seed:              req.Seed,
		PopulationSize:    req.Population,
		Generations:       len(result.BestByGeneration),
		TerminationReason: string(result.TerminationReason),
		FinalBestFitness:  result.BestFitness,
		BestGeneration:    result.BestGeneration,
		BestProgramID:     bestProgramID,
	}); err != nil {
		return RunSummary{}, err
	}
	if err := c.store.SaveFitnessHistory(ctx, runID, result.BestByGeneration); err != nil {
		return RunSummary{}, err
	}
	if err := c.store.SaveGenerationDiagnostics(ctx, runID, diagnostics); err != nil {
		return RunSummary{}, err
	}

	topPrograms := topProgramsFromPopulation(runID, result.FinalPopulation, 5)
	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
		Config:            runConfigFromRequest(runID, req),
		BestByGeneration:  result.BestByGeneration,
		Diagnostics:       diagnostics,
		FinalBestFitness:  result.BestFitness,
		BestGeneration:    result.BestGeneration,
		TerminationReason: string(result.TerminationReason),
		TopPrograms:       topPrograms,
	})
	if err != nil {
		return RunSummary{}, err
	}

	if err := stats.AppendRunIndex(c.artifactsDir, stats.RunIndexEntry{
		RunID:             runID,
		Scape:             req.Scape,
		PopulationSize:    req.Population,
		Generations:       len(result.BestByGeneration),
		Seed:              req.Seed,
		Workers:           req.Workers,
		EliteCount:        req.EliteCount,
		TerminationReason: string(result.TerminationReason),
		FinalBestFitness:  result.BestFitness,
		BestRendered:      bestRendered,
		CreatedAtUTC:      now.Format(time.RFC3339Nano),
	}); err != nil {
		return RunSummary{}, err
	}

	return RunSummary{
		RunID:             runID,
		ArtifactsDir:      filepath.Clean(runDir),
		BestByGeneration:  append([]float64(nil), result.BestByGeneration...),
		FinalBestFitness:  result.BestFitness,
		BestGeneration:    result.BestGeneration,
		TerminationReason: string(result.TerminationReason),
		BestRendered:      bestRendered,
		BestProgramID:     bestProgramID,
	}, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:             e.RunID,
			CreatedAtUTC:      e.CreatedAtUTC,
			Scape:             e.Scape,
			Seed:              e.Seed,
			Population:        e.PopulationSize,
			Generations:       e.Generations,
			TerminationReason: e.TerminationReason,
			FinalBestFitness:  e.FinalBestFitness,
			BestRendered:      e.BestRendered,
		})
	}
	return out, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest, "export")
	if err != nil {
		return ExportSummary{}, err
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	exportedDir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) FitnessHistory(ctx context.Context, req FitnessHistoryRequest) ([]float64, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "fitness history")
	if err != nil {
		return nil, err
	}

	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	history, ok, err := c.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("fitness history not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[:req.Limit]
	}
	return append([]float64(nil), history...), nil
}

func (c *Client) Diagnostics(ctx context.Context, req DiagnosticsRequest) ([]model.GenerationRecord, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "diagnostics")
	if err != nil {
		return nil, err
	}

	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	diagnostics, ok, err := c.store.GetGenerationDiagnostics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("diagnostics not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(diagnostics) > req.Limit {
		diagnostics = diagnostics[:req.Limit]
	}
	out := make([]model.GenerationRecord, len(diagnostics))
	copy(out, diagnostics)
	return out, nil
}

func (c *Client) BestProgram(ctx context.Context, req BestProgramRequest) (BestProgramItem, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest, "best program")
	if err != nil {
		return BestProgramItem{}, err
	}

	if err := c.Init(ctx); err != nil {
		return BestProgramItem{}, err
	}
	run, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return BestProgramItem{}, err
	}
	if !ok {
		return BestProgramItem{}, fmt.Errorf("run not found: %s", runID)
	}
	record, ok, err := c.store.GetProgram(ctx, run.BestProgramID)
	if err != nil {
		return BestProgramItem{}, err
	}
	if !ok {
		return BestProgramItem{}, fmt.Errorf("best program not found for run id: %s", runID)
	}

	return BestProgramItem{
		RunID:    runID,
		Fitness:  run.FinalBestFitness,
		Rendered: record.Rendered,
		Program:  record,
	}, nil
}

// Benchmark fans one configuration out over several seeds and records
// the aggregate under a single artifacts directory.
func (c *Client) Benchmark(ctx context.Context, req BenchmarkRequest) (BenchmarkResult, error) {
	if len(req.Seeds) == 0 {
		return BenchmarkResult{}, errors.New("benchmark requires at least one seed")
	}

	runID := "bench-" + uuid.NewString()
	runDir := filepath.Join(c.artifactsDir, runID)
	if err := stats.WriteRunConfig(c.artifactsDir, runID, stats.RunConfig{
		RunID:          runID,
		Scape:          valueOrDefaultScape(req.Scape),
		Target:         req.Target,
		SampleCount:    req.SampleCount,
		PopulationSize: req.Population,
		Generations:    req.Generations,
		EliteCount:     req.EliteCount,
		Workers:        req.Workers,
	}); err != nil {
		return BenchmarkResult{}, err
	}

	if err := c.Init(ctx); err != nil {
		return BenchmarkResult{}, err
	}

	requests := make([]RunRequest, len(req.Seeds))
	for i, seed := range req.Seeds {
		runReq := RunRequest{
			Scape:       req.Scape,
			Target:      req.Target,
			SampleCount: req.SampleCount,
			Population:  req.Population,
			MaxDepth:    req.MaxDepth,
			Generations: req.Generations,
			Seed:        seed,
			Workers:     req.Workers,
			EliteCount:  req.EliteCount,
			FitnessGoal: req.FitnessGoal,
		}
		applyRunDefaults(&runReq)
		requests[i] = runReq
	}

	// Seeds are independent, so the searches fan out concurrently;
	// persistence stays sequential because the run index is a single
	// shared file.
	searchResults := make([]evo.RunResult, len(req.Seeds))
	group, groupCtx := errgroup.WithContext(ctx)
	for i := range requests {
		i := i
		group.Go(func() error {
			result, err := c.search(groupCtx, requests[i])
			if err != nil {
				return fmt.Errorf("benchmark seed %d: %w", requests[i].Seed, err)
			}
			searchResults[i] = result
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return BenchmarkResult{}, err
	}

	results := make([]stats.SeedResult, len(req.Seeds))
	series := make([][]float64, len(req.Seeds))
	for i, seed := range req.Seeds {
		summary, err := c.persistRun(ctx, requests[i], searchResults[i])
		if err != nil {
			return BenchmarkResult{}, fmt.Errorf("benchmark seed %d: %w", seed, err)
		}
		results[i] = stats.SeedResult{
			Seed:              seed,
			FinalBest:         summary.FinalBestFitness,
			BestGeneration:    summary.BestGeneration,
			Generations:       len(summary.BestByGeneration),
			TerminationReason: summary.TerminationReason,
			ReachedGoal:       summary.TerminationReason == string(evo.TerminatedFitnessGoal),
		}
		series[i] = summary.BestByGeneration
	}

	summary, err := stats.SummarizeBenchmark(runID, valueOrDefaultScape(req.Scape), req.Population, req.Generations, req.FitnessGoal, results)
	if err != nil {
		return BenchmarkResult{}, err
	}
	if err := stats.WriteBenchmarkSummary(runDir, summary); err != nil {
		return BenchmarkResult{}, err
	}
	if err := stats.WriteBenchmarkSeries(runDir, req.Seeds, series); err != nil {
		return BenchmarkResult{}, err
	}

	return BenchmarkResult{
		RunID:     runID,
		Directory: filepath.Clean(runDir),
		Summary:   summary,
	}, nil
}

func (c *Client) resolveRunID(runID string, latest bool, operation string) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID != "" {
		return runID, nil
	}
	if !latest {
		return "", fmt.Errorf("%s requires run id or latest", operation)
	}

	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}

func applyRunDefaults(req *RunRequest) {
	if req.Scape == "" {
		req.Scape = "target_value"
	}
	if req.Population <= 0 {
		req.Population = 50
	}
	if req.MaxDepth <= 0 {
		req.MaxDepth = 5
	}
	if req.Generations <= 0 {
		req.Generations = 100
	}
	if req.Workers <= 0 {
		req.Workers = 4
	}
	if req.Selection == "" {
		req.Selection = "tournament"
	}
	if req.TournamentSize <= 0 {
		req.TournamentSize = 3
	}
	// EliteCount defaults to zero elites; an explicit zero is honored.
	if req.EliteCount < 0 {
		req.EliteCount = 0
	}
}

func registryForScape(scapeName string) (*lang.Registry, error) {
	opts := lang.ArithmeticOptions{}
	// Regression scapes bind the sample input as variable x.
	if strings.Contains(scapeName, "regression") {
		opts.Variables = []string{"x"}
	}
	return lang.NewArithmeticRegistry(opts)
}

func selectorFromName(name string, tournamentSize int) (evo.Selector, error) {
	switch name {
	case "tournament":
		return evo.TournamentSelector{Size: tournamentSize}, nil
	case "random":
		return evo.RandomSelector{}, nil
	case "elite":
		return evo.EliteSelector{}, nil
	default:
		return nil, fmt.Errorf("unsupported selection strategy: %s", name)
	}
}

func valueOrDefaultScape(name string) string {
	if name == "" {
		return "target_value"
	}
	return name
}

func versionedRecord() model.VersionedRecord {
	return model.VersionedRecord{
		SchemaVersion: model.CurrentSchemaVersion,
		CodecVersion:  model.CurrentCodecVersion,
	}
}

func diagnosticsFromSteps(steps []evo.GenerationStep) []model.GenerationRecord {
	out := make([]model.GenerationRecord, 0, len(steps))
	for _, step := range steps {
		out = append(out, stats.GenerationRecordFromStep(step))
	}
	return out
}

func topProgramsFromPopulation(runID string, ranked []evo.ScoredProgram, limit int) []stats.TopProgram {
	if limit > len(ranked) {
		limit = len(ranked)
	}
	out := make([]stats.TopProgram, 0, limit)
	for i := 0; i < limit; i++ {
		scored := ranked[i]
		if scored.Program == nil {
			continue
		}
		id := fmt.Sprintf("top-%s-%d", runID, i+1)
		out = append(out, stats.TopProgram{
			Rank:     i + 1,
			Fitness:  scored.Fitness,
			Rendered: scored.Program.Render(),
			Program:  program.ToRecord(id, scored.Program),
		})
	}
	return out
}

func runConfigFromRequest(runID string, req RunRequest) stats.RunConfig {
	cfg := stats.RunConfig{
		RunID:            runID,
		Scape:            req.Scape,
		Target:           req.Target,
		SampleCount:      req.SampleCount,
		PopulationSize:   req.Population,
		MaxDepth:         req.MaxDepth,
		Generations:      req.Generations,
		TournamentSize:   req.TournamentSize,
		EliteCount:       req.EliteCount,
		CrossoverRate:    req.CrossoverRate,
		StagnationWindow: req.StagnationWindow,
		RestartAfter:     req.RestartAfter,
		Workers:          req.Workers,
		Seed:             req.Seed,
	}
	if req.FitnessGoal != nil {
		goal := *req.FitnessGoal
		cfg.FitnessGoal = &goal
	}
	if req.WarmStart != nil {
		cfg.WarmStart = req.WarmStart.Render()
	}
	return cfg
}
