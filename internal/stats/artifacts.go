package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"progsearch/internal/model"
)

const runIndexFile = "run_index.json"

// RunConfig records the complete configuration of one search run, so a
// run directory is self-describing and reproducible from config.json
// alone.
type RunConfig struct {
	RunID            string   `json:"run_id"`
	Scape            string   `json:"scape"`
	Target           float64  `json:"target,omitempty"`
	SampleCount      int      `json:"sample_count,omitempty"`
	PopulationSize   int      `json:"population_size"`
	MaxDepth         int      `json:"max_depth"`
	Generations      int      `json:"generations"`
	TournamentSize   int      `json:"tournament_size"`
	EliteCount       int      `json:"elite_count"`
	CrossoverRate    float64  `json:"crossover_rate"`
	FitnessGoal      *float64 `json:"fitness_goal,omitempty"`
	StagnationWindow int      `json:"stagnation_window,omitempty"`
	RestartAfter     int      `json:"restart_after,omitempty"`
	Workers          int      `json:"workers"`
	Seed             int64    `json:"seed"`
	WarmStart        string   `json:"warm_start,omitempty"`
}

type TopProgram struct {
	Rank     int                 `json:"rank"`
	Fitness  float64             `json:"fitness"`
	Rendered string              `json:"rendered"`
	Program  model.ProgramRecord `json:"program"`
}

type RunArtifacts struct {
	Config            RunConfig                `json:"config"`
	BestByGeneration  []float64                `json:"best_by_generation"`
	Diagnostics       []model.GenerationRecord `json:"generation_diagnostics,omitempty"`
	FinalBestFitness  float64                  `json:"final_best_fitness"`
	BestGeneration    int                      `json:"best_generation"`
	TerminationReason string                   `json:"termination_reason"`
	TopPrograms       []TopProgram             `json:"top_programs"`
}

type RunIndexEntry struct {
	RunID             string  `json:"run_id"`
	Scape             string  `json:"scape"`
	PopulationSize    int     `json:"population_size"`
	Generations       int     `json:"generations"`
	Seed              int64   `json:"seed"`
	Workers           int     `json:"workers"`
	EliteCount        int     `json:"elite_count"`
	TerminationReason string  `json:"termination_reason"`
	FinalBestFitness  float64 `json:"final_best_fitness"`
	BestRendered      string  `json:"best_rendered,omitempty"`
	CreatedAtUTC      string  `json:"created_at_utc"`
}

// WriteRunArtifacts materializes the run directory under baseDir and
// returns its path.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "config.json"), artifacts.Config); err != nil {
		return "", err
	}
	history := map[string]any{
		"best_by_generation": artifacts.BestByGeneration,
		"final_best_fitness": artifacts.FinalBestFitness,
		"best_generation":    artifacts.BestGeneration,
		"termination_reason": artifacts.TerminationReason,
	}
	if err := writeJSON(filepath.Join(runDir, "fitness_history.json"), history); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "top_programs.json"), artifacts.TopPrograms); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "generation_diagnostics.json"), artifacts.Diagnostics); err != nil {
		return "", err
	}
	if err := WriteFitnessSeries(runDir, artifacts.BestByGeneration); err != nil {
		return "", err
	}
	if err := WriteDiagnosticsCSV(runDir, artifacts.Diagnostics); err != nil {
		return "", err
	}

	return runDir, nil
}

// AppendRunIndex inserts or replaces the entry for entry.RunID in the
// base directory's run index.
func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns index entries newest first. A missing index
// file means no runs yet, not an error.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// ExportRunArtifacts copies one run's artifact files into outDir and
// returns the destination directory.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	files := []string{"config.json", "fitness_history.json", "top_programs.json", "generation_diagnostics.json", "fitness_series.csv", "generation_diagnostics.csv"}
	for _, file := range files {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}

	// Benchmark files only exist for benchmark runs.
	for _, file := range []string{"benchmark_summary.json", "benchmark_series.csv"} {
		path := filepath.Join(src, file)
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", err
		}
		if err := copyFile(path, filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}

	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	path := filepath.Join(baseDir, runID, "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RunConfig{}, false, nil
		}
		return RunConfig{}, false, err
	}

	var cfg RunConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, false, err
	}
	return cfg, true, nil
}

func WriteRunConfig(baseDir, runID string, cfg RunConfig) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("run id is required")
	}
	if strings.TrimSpace(cfg.RunID) == "" {
		cfg.RunID = strings.TrimSpace(runID)
	}
	if cfg.RunID != strings.TrimSpace(runID) {
		return fmt.Errorf("run config run id mismatch: got=%s want=%s", cfg.RunID, strings.TrimSpace(runID))
	}
	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(runDir, "config.json"), cfg)
}

func ReadTopPrograms(baseDir, runID string) ([]TopProgram, bool, error) {
	path := filepath.Join(baseDir, runID, "top_programs.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var top []TopProgram
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, false, err
	}
	return top, true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
