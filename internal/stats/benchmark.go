package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
)

// SeedResult is one seed's outcome inside a multi-seed benchmark.
type SeedResult struct {
	Seed              int64   `json:"seed"`
	FinalBest         float64 `json:"final_best"`
	BestGeneration    int     `json:"best_generation"`
	Generations       int     `json:"generations"`
	TerminationReason string  `json:"termination_reason"`
	ReachedGoal       bool    `json:"reached_goal"`
}

// BenchmarkSummary aggregates a scape benchmark across seeds.
type BenchmarkSummary struct {
	RunID          string       `json:"run_id"`
	Scape          string       `json:"scape"`
	PopulationSize int          `json:"population_size"`
	Generations    int          `json:"generations"`
	FitnessGoal    *float64     `json:"fitness_goal,omitempty"`
	Seeds          []SeedResult `json:"seeds"`
	SolvedRuns     int          `json:"solved_runs"`
	SolveRate      float64      `json:"solve_rate"`
	BestMean       float64      `json:"best_mean"`
	BestStd        float64      `json:"best_std"`
	BestMax        float64      `json:"best_max"`
	BestMin        float64      `json:"best_min"`
}

// SummarizeBenchmark computes aggregate statistics over per-seed
// results. At least one seed is required.
func SummarizeBenchmark(runID, scapeName string, populationSize, generations int, fitnessGoal *float64, seeds []SeedResult) (BenchmarkSummary, error) {
	if len(seeds) == 0 {
		return BenchmarkSummary{}, fmt.Errorf("benchmark requires at least one seed result")
	}

	summary := BenchmarkSummary{
		RunID:          runID,
		Scape:          scapeName,
		PopulationSize: populationSize,
		Generations:    generations,
		FitnessGoal:    fitnessGoal,
		Seeds:          seeds,
		BestMax:        math.Inf(-1),
		BestMin:        math.Inf(1),
	}

	total := 0.0
	for _, seed := range seeds {
		total += seed.FinalBest
		if seed.FinalBest > summary.BestMax {
			summary.BestMax = seed.FinalBest
		}
		if seed.FinalBest < summary.BestMin {
			summary.BestMin = seed.FinalBest
		}
		if seed.ReachedGoal {
			summary.SolvedRuns++
		}
	}
	summary.BestMean = total / float64(len(seeds))
	summary.SolveRate = float64(summary.SolvedRuns) / float64(len(seeds))

	variance := 0.0
	for _, seed := range seeds {
		delta := seed.FinalBest - summary.BestMean
		variance += delta * delta
	}
	summary.BestStd = math.Sqrt(variance / float64(len(seeds)))

	return summary, nil
}

func WriteBenchmarkSummary(runDir string, summary BenchmarkSummary) error {
	return writeJSON(filepath.Join(runDir, "benchmark_summary.json"), summary)
}

func ReadBenchmarkSummary(baseDir, runID string) (BenchmarkSummary, bool, error) {
	path := filepath.Join(baseDir, runID, "benchmark_summary.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return BenchmarkSummary{}, false, nil
		}
		return BenchmarkSummary{}, false, err
	}
	var summary BenchmarkSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return BenchmarkSummary{}, false, err
	}
	return summary, true, nil
}

// WriteBenchmarkSeries writes one column of per-generation bests per
// seed, padded rows omitted when a seed terminated early.
func WriteBenchmarkSeries(runDir string, seeds []int64, bestBySeed [][]float64) error {
	if len(seeds) != len(bestBySeed) {
		return fmt.Errorf("seed count %d does not match series count %d", len(seeds), len(bestBySeed))
	}

	file, err := os.Create(filepath.Join(runDir, "benchmark_series.csv"))
	if err != nil {
		return err
	}
	defer file.Close()

	header := make([]string, 0, len(seeds)+1)
	header = append(header, "generation")
	for _, seed := range seeds {
		header = append(header, "seed_"+strconv.FormatInt(seed, 10))
	}

	rows := 0
	for _, series := range bestBySeed {
		if len(series) > rows {
			rows = len(series)
		}
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return err
	}
	for gen := 0; gen < rows; gen++ {
		row := make([]string, 0, len(seeds)+1)
		row = append(row, strconv.Itoa(gen))
		for _, series := range bestBySeed {
			if gen < len(series) {
				row = append(row, strconv.FormatFloat(series[gen], 'f', -1, 64))
			} else {
				row = append(row, "")
			}
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadBenchmarkSeries(baseDir, runID string) ([][]float64, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, "benchmark_series.csv"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return [][]float64{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 2 {
		return nil, false, fmt.Errorf("benchmark series header must have at least 2 columns")
	}

	series := make([][]float64, len(header)-1)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(row) != len(header) {
			return nil, false, fmt.Errorf("benchmark series row has %d columns, want %d", len(row), len(header))
		}
		for col := 1; col < len(row); col++ {
			if row[col] == "" {
				continue
			}
			value, err := strconv.ParseFloat(row[col], 64)
			if err != nil {
				return nil, false, err
			}
			series[col-1] = append(series[col-1], value)
		}
	}
	return series, true, nil
}
