package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"progsearch/internal/scape"
	"progsearch/internal/storage"
	searchapi "progsearch/pkg/progsearch"
)

const (
	artifactsDir = "runs"
	exportsDir   = "exports"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "reset":
		return runReset(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "benchmark":
		return runBenchmark(ctx, args[1:])
	case "profile":
		return runProfile(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "fitness":
		return runFitness(ctx, args[1:])
	case "diagnostics":
		return runDiagnostics(ctx, args[1:])
	case "best":
		return runBest(ctx, args[1:])
	case "scapes":
		return runScapes(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "progsearch.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := searchapi.New(searchapi.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: artifactsDir,
		ExportsDir:   exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Init(ctx); err != nil {
		return err
	}

	fmt.Printf("initialized store=%s\n", *storeKind)
	return nil
}

// runReset removes persisted run state: the artifacts directory and,
// for the sqlite backend, the database file.
func runReset(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "progsearch.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := os.RemoveAll(artifactsDir); err != nil {
		return fmt.Errorf("reset artifacts: %w", err)
	}
	if *storeKind == "sqlite" {
		if err := os.Remove(*dbPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("reset store: %w", err)
		}
	}

	fmt.Printf("reset store=%s\n", *storeKind)
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional run config JSON path")
	profileName := fs.String("profile", "", "optional profile name from the profiles file")
	profilesPath := fs.String("profiles", defaultProfilesPath, "profiles YAML path")
	scapeName := fs.String("scape", "target_value", "scape name: target_value|quadratic_regression")
	target := fs.Float64("target", 17, "target value (target_value scape)")
	samples := fs.Int("samples", 0, "sample count for regression scapes (0 uses the scape default)")
	population := fs.Int("pop", 50, "population size")
	maxDepth := fs.Int("depth", 5, "maximum program depth")
	generations := fs.Int("gens", 100, "generation limit")
	seed := fs.Int64("seed", 1, "rng seed")
	workers := fs.Int("workers", 4, "evaluation worker count")
	selectionName := fs.String("selection", "tournament", "parent selection strategy: tournament|random|elite")
	tournamentSize := fs.Int("tournament", 3, "tournament size for tournament selection")
	eliteCount := fs.Int("elite", 0, "elite count carried unchanged per generation")
	crossoverRate := fs.Float64("crossover", 0.0, "probability of crossover instead of mutation per offspring")
	fitnessGoal := fs.Float64("fitness-goal", 0, "early-stop best fitness goal (only applied when set)")
	stagnationWindow := fs.Int("stagnation", 0, "stop after N generations without improvement (0 disables)")
	restartAfter := fs.Int("restart-after", 0, "regenerate non-elites after N stale generations (0 disables)")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "progsearch.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	req, err := loadOrDefaultRunRequest(*configPath)
	if err != nil {
		return err
	}
	if *configPath == "" {
		req = searchapi.RunRequest{
			Scape:            *scapeName,
			Target:           *target,
			SampleCount:      *samples,
			Population:       *population,
			MaxDepth:         *maxDepth,
			Generations:      *generations,
			Seed:             *seed,
			Workers:          *workers,
			Selection:        *selectionName,
			TournamentSize:   *tournamentSize,
			EliteCount:       *eliteCount,
			CrossoverRate:    *crossoverRate,
			StagnationWindow: *stagnationWindow,
			RestartAfter:     *restartAfter,
		}
		if setFlags["fitness-goal"] {
			goal := *fitnessGoal
			req.FitnessGoal = &goal
		}
	} else {
		if err := overrideFromFlags(&req, setFlags, map[string]any{
			"scape":         *scapeName,
			"target":        *target,
			"samples":       *samples,
			"pop":           *population,
			"depth":         *maxDepth,
			"gens":          *generations,
			"seed":          *seed,
			"workers":       *workers,
			"selection":     *selectionName,
			"tournament":    *tournamentSize,
			"elite":         *eliteCount,
			"crossover":     *crossoverRate,
			"fitness-goal":  *fitnessGoal,
			"stagnation":    *stagnationWindow,
			"restart-after": *restartAfter,
		}); err != nil {
			return err
		}
	}
	if *profileName != "" {
		preset, err := resolveProfile(*profilesPath, *profileName)
		if err != nil {
			return err
		}
		applyProfile(&req, preset)
	}

	client, err := searchapi.New(searchapi.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: artifactsDir,
		ExportsDir:   exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Run(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("run completed run_id=%s scape=%s pop=%d seed=%d\n", summary.RunID, req.Scape, req.Population, req.Seed)
	for i, best := range summary.BestByGeneration {
		fmt.Printf("generation=%d best_fitness=%.6f\n", i, best)
	}
	fmt.Printf("final_best_fitness=%.6f best_generation=%d reason=%s\n",
		summary.FinalBestFitness, summary.BestGeneration, summary.TerminationReason)
	if summary.BestRendered != "" {
		fmt.Printf("best_program=%s\n", summary.BestRendered)
	}
	fmt.Printf("artifacts_dir=%s\n", filepath.Clean(summary.ArtifactsDir))
	return nil
}

func runBenchmark(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("benchmark", flag.ContinueOnError)
	scapeName := fs.String("scape", "target_value", "scape name: target_value|quadratic_regression")
	target := fs.Float64("target", 17, "target value (target_value scape)")
	samples := fs.Int("samples", 0, "sample count for regression scapes (0 uses the scape default)")
	population := fs.Int("pop", 50, "population size")
	maxDepth := fs.Int("depth", 5, "maximum program depth")
	generations := fs.Int("gens", 100, "generation limit")
	seedList := fs.String("seeds", "1,2,3,4,5", "comma-separated rng seeds, one search per seed")
	workers := fs.Int("workers", 4, "evaluation worker count per search")
	eliteCount := fs.Int("elite", 0, "elite count carried unchanged per generation")
	fitnessGoal := fs.Float64("fitness-goal", 0, "early-stop best fitness goal (only applied when set)")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "progsearch.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	seeds, err := parseSeeds(*seedList)
	if err != nil {
		return err
	}

	req := searchapi.BenchmarkRequest{
		Scape:       *scapeName,
		Target:      *target,
		SampleCount: *samples,
		Population:  *population,
		MaxDepth:    *maxDepth,
		Generations: *generations,
		Seeds:       seeds,
		Workers:     *workers,
		EliteCount:  *eliteCount,
	}
	if setFlags["fitness-goal"] {
		goal := *fitnessGoal
		req.FitnessGoal = &goal
	}

	client, err := searchapi.New(searchapi.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: artifactsDir,
		ExportsDir:   exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	result, err := client.Benchmark(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("benchmark completed run_id=%s scape=%s seeds=%d\n", result.RunID, req.Scape, len(seeds))
	for _, sr := range result.Summary.Seeds {
		fmt.Printf("seed=%d final_best=%.6f best_generation=%d gens=%d reason=%s reached_goal=%t\n",
			sr.Seed, sr.FinalBest, sr.BestGeneration, sr.Generations, sr.TerminationReason, sr.ReachedGoal)
	}
	fmt.Printf("solved=%d/%d solve_rate=%.2f best_mean=%.6f best_std=%.6f best_max=%.6f best_min=%.6f\n",
		result.Summary.SolvedRuns, len(seeds),
		result.Summary.SolveRate,
		result.Summary.BestMean,
		result.Summary.BestStd,
		result.Summary.BestMax,
		result.Summary.BestMin,
	)
	fmt.Printf("artifacts_dir=%s\n", filepath.Clean(result.Directory))
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "progsearch.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := searchapi.New(searchapi.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: artifactsDir,
		ExportsDir:   exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.Runs(ctx, searchapi.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	for _, item := range items {
		fmt.Printf("run_id=%s created=%s scape=%s seed=%d pop=%d gens=%d reason=%s final_best_fitness=%.6f best=%s\n",
			item.RunID,
			createdDisplay(item.CreatedAtUTC),
			item.Scape,
			item.Seed,
			item.Population,
			item.Generations,
			item.TerminationReason,
			item.FinalBestFitness,
			item.BestRendered,
		)
	}
	return nil
}

// createdDisplay shows the run age relative to now and falls back to
// the raw timestamp when it does not parse.
func createdDisplay(createdAtUTC string) string {
	t, err := time.Parse(time.RFC3339Nano, createdAtUTC)
	if err != nil {
		return createdAtUTC
	}
	return humanize.Time(t)
}

func runFitness(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fitness", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show fitness history for the most recent run from run index")
	limit := fs.Int("limit", 50, "max generations to print (<=0 for all)")
	jsonOut := fs.Bool("json", false, "emit fitness history as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "progsearch.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("fitness requires --run-id or --latest")
	}

	client, err := searchapi.New(searchapi.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: artifactsDir,
		ExportsDir:   exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	history, err := client.FitnessHistory(ctx, searchapi.FitnessHistoryRequest{
		RunID:  *runID,
		Latest: *latest,
		Limit:  *limit,
	})
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Println("no fitness history")
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(history)
	}

	for i, best := range history {
		fmt.Printf("generation=%d best_fitness=%.6f\n", i, best)
	}
	return nil
}

func runDiagnostics(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("diagnostics", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show diagnostics for the most recent run from run index")
	limit := fs.Int("limit", 50, "max generations to print (<=0 for all)")
	jsonOut := fs.Bool("json", false, "emit diagnostics as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "progsearch.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("diagnostics requires --run-id or --latest")
	}

	client, err := searchapi.New(searchapi.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: artifactsDir,
		ExportsDir:   exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	diagnostics, err := client.Diagnostics(ctx, searchapi.DiagnosticsRequest{
		RunID:  *runID,
		Latest: *latest,
		Limit:  *limit,
	})
	if err != nil {
		return err
	}
	if len(diagnostics) == 0 {
		fmt.Println("no diagnostics")
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(diagnostics)
	}

	for _, d := range diagnostics {
		fmt.Printf("generation=%d best=%.6f mean=%.6f worst=%.6f valid=%.1f%% unique=%d overall_best=%.6f elapsed_ms=%d\n",
			d.Generation,
			d.BestFitness,
			d.MeanFitness,
			d.WorstFitness,
			d.ValidPercent,
			d.UniquePrograms,
			d.OverallBestFitness,
			d.ElapsedMS,
		)
	}
	return nil
}

func runBest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("best", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show the best program for the most recent run from run index")
	jsonOut := fs.Bool("json", false, "emit best program as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "progsearch.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("best requires --run-id or --latest")
	}

	client, err := searchapi.New(searchapi.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: artifactsDir,
		ExportsDir:   exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	best, err := client.BestProgram(ctx, searchapi.BestProgramRequest{
		RunID:  *runID,
		Latest: *latest,
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(best)
	}

	fmt.Printf("run_id=%s fitness=%.6f program=%s\n", best.RunID, best.Fitness, best.Rendered)
	return nil
}

func runScapes(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("scapes", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	for _, name := range scape.List() {
		fmt.Println(name)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from run index")
	outDir := fs.String("out", exportsDir, "export output directory")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "progsearch.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}

	client, err := searchapi.New(searchapi.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: artifactsDir,
		ExportsDir:   *outDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Export(ctx, searchapi.ExportRequest{
		RunID:  *runID,
		Latest: *latest,
		OutDir: *outDir,
	})
	if err != nil {
		return err
	}

	fmt.Printf("exported run_id=%s to=%s\n", summary.RunID, filepath.Clean(summary.Directory))
	return nil
}

func runProfile(_ context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("profile requires a subcommand: list|show")
	}
	switch args[0] {
	case "list":
		fs := flag.NewFlagSet("profile list", flag.ContinueOnError)
		profilesPath := fs.String("profiles", defaultProfilesPath, "profiles YAML path")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		profiles, err := loadProfiles(*profilesPath)
		if err != nil {
			return err
		}
		if len(profiles) == 0 {
			fmt.Println("no profiles")
			return nil
		}
		for _, p := range profiles {
			fmt.Printf("name=%s scape=%s pop=%d gens=%d selection=%s\n",
				p.Name, p.Scape, p.Population, p.Generations, p.Selection)
		}
		return nil
	case "show":
		fs := flag.NewFlagSet("profile show", flag.ContinueOnError)
		name := fs.String("name", "", "profile name")
		profilesPath := fs.String("profiles", defaultProfilesPath, "profiles YAML path")
		asJSON := fs.Bool("json", false, "print resolved profile as JSON")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *name == "" {
			return errors.New("profile show requires --name")
		}
		profile, err := resolveProfile(*profilesPath, *name)
		if err != nil {
			return err
		}
		if *asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(profile)
		}
		fmt.Printf("name=%s scape=%s target=%.3f samples=%d pop=%d depth=%d gens=%d selection=%s tournament=%d elite=%d crossover=%.3f stagnation=%d restart_after=%d\n",
			profile.Name,
			profile.Scape,
			profile.Target,
			profile.SampleCount,
			profile.Population,
			profile.MaxDepth,
			profile.Generations,
			profile.Selection,
			profile.TournamentSize,
			profile.EliteCount,
			profile.CrossoverRate,
			profile.StagnationWindow,
			profile.RestartAfter,
		)
		return nil
	default:
		return fmt.Errorf("unsupported profile subcommand: %s", args[0])
	}
}

func parseSeeds(list string) ([]int64, error) {
	parts := strings.Split(list, ",")
	seeds := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		seed, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid seed %q: %w", part, err)
		}
		seeds = append(seeds, seed)
	}
	if len(seeds) == 0 {
		return nil, errors.New("benchmark requires at least one seed")
	}
	return seeds, nil
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: progsearchctl <init|reset|run|benchmark|profile|runs|fitness|diagnostics|best|scapes|export> [flags]", msg)
}
