package evo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"progsearch/internal/lang"
	"progsearch/internal/program"
	"progsearch/internal/scape"
)

var ErrInvalidConfig = errors.New("invalid search configuration")

// SentinelFitness is assigned to individuals whose evaluation failed,
// so one broken program ranks last instead of aborting the generation.
var SentinelFitness = math.Inf(-1)

type TerminationReason string

const (
	TerminatedCancelled       TerminationReason = "cancelled"
	TerminatedFitnessGoal     TerminationReason = "fitness_goal"
	TerminatedGenerationLimit TerminationReason = "generation_limit"
	TerminatedStagnation      TerminationReason = "stagnation"
)

// GenerationStep summarizes one generation for progress sinks and
// diagnostics.
type GenerationStep struct {
	Generation         int
	PopulationSize     int
	BestFitness        float64
	MeanFitness        float64
	WorstFitness       float64
	ValidPercent       float64
	UniquePrograms     int
	OverallBestFitness float64
	Best               *program.Program
	Elapsed            time.Duration
}

// ProgressSink receives one record per generation. Sink errors are
// reported back but never abort the search.
type ProgressSink interface {
	RecordGeneration(step GenerationStep) error
}

type MonitorConfig struct {
	Registry   *lang.Registry
	Scape      scape.Scape
	ReturnType lang.Type

	PopulationSize int
	MaxDepth       int
	Generations    int

	TournamentSize int
	EliteCount     int
	Selector       Selector

	MutationPolicy []WeightedMutation
	CrossoverRate  float64

	// FitnessGoal stops the run early once the best fitness reaches or
	// exceeds it. FitnessGoalSet distinguishes a zero goal from none.
	FitnessGoal    float64
	FitnessGoalSet bool

	// StagnationWindow stops the run after that many consecutive
	// generations without improvement of the global best. Zero
	// disables the check.
	StagnationWindow int

	// RestartAfter regenerates the non-elite population after that
	// many generations without improvement. Zero disables restarts.
	RestartAfter int

	Workers   int
	Seed      int64
	WarmStart *program.Program
	Sinks     []ProgressSink
}

// RunResult reports the global best across all generations, never just
// the final generation's best: without elitism a generation can
// regress against history.
type RunResult struct {
	BestProgram       *program.Program
	BestFitness       float64
	BestGeneration    int
	TerminationReason TerminationReason
	BestByGeneration  []float64
	Diagnostics       []GenerationStep
	FinalPopulation   []ScoredProgram
}

// Monitor drives the evolutionary loop: initialize, evaluate, select,
// reproduce, repeat until a termination condition is met.
type Monitor struct {
	cfg    MonitorConfig
	rng    *rand.Rand
	engine *Engine
}

// individual carries a program across the generation boundary together
// with its evaluation state. Elites arrive scored, so the scape is
// invoked once per individual even when it is nondeterministic.
type individual struct {
	program *program.Program
	fitness float64
	valid   bool
	scored  bool
}

func NewMonitor(cfg MonitorConfig) (*Monitor, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("%w: registry is required", ErrInvalidConfig)
	}
	if !cfg.Registry.Finalized() {
		return nil, fmt.Errorf("%w: registry must be finalized before search", ErrInvalidConfig)
	}
	if cfg.Scape == nil {
		return nil, fmt.Errorf("%w: scape is required", ErrInvalidConfig)
	}
	if cfg.ReturnType == "" {
		return nil, fmt.Errorf("%w: return type is required", ErrInvalidConfig)
	}
	if cfg.PopulationSize <= 0 {
		return nil, fmt.Errorf("%w: population size must be > 0", ErrInvalidConfig)
	}
	if cfg.MaxDepth < 0 {
		return nil, fmt.Errorf("%w: max depth must be >= 0", ErrInvalidConfig)
	}
	if cfg.Generations <= 0 {
		return nil, fmt.Errorf("%w: generations must be > 0", ErrInvalidConfig)
	}
	if cfg.TournamentSize <= 0 {
		cfg.TournamentSize = 2
	}
	if cfg.TournamentSize > cfg.PopulationSize {
		return nil, fmt.Errorf("%w: tournament size %d exceeds population size %d", ErrInvalidConfig, cfg.TournamentSize, cfg.PopulationSize)
	}
	if cfg.EliteCount < 0 || cfg.EliteCount > cfg.PopulationSize {
		return nil, fmt.Errorf("%w: elite count must be in [0, population size]", ErrInvalidConfig)
	}
	if cfg.CrossoverRate < 0 || cfg.CrossoverRate > 1 {
		return nil, fmt.Errorf("%w: crossover rate must be in [0, 1]", ErrInvalidConfig)
	}
	if cfg.StagnationWindow < 0 {
		return nil, fmt.Errorf("%w: stagnation window must be >= 0", ErrInvalidConfig)
	}
	if cfg.RestartAfter < 0 {
		return nil, fmt.Errorf("%w: restart threshold must be >= 0", ErrInvalidConfig)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.WarmStart != nil && cfg.WarmStart.RootType() != cfg.ReturnType {
		return nil, fmt.Errorf("%w: warm-start program produces %s, search wants %s", ErrInvalidConfig, cfg.WarmStart.RootType(), cfg.ReturnType)
	}
	if cfg.Selector == nil {
		cfg.Selector = TournamentSelector{Size: cfg.TournamentSize}
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	engine, err := NewEngine(EngineConfig{
		Registry: cfg.Registry,
		Rand:     rng,
		MaxDepth: cfg.MaxDepth,
		Policy:   cfg.MutationPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &Monitor{cfg: cfg, rng: rng, engine: engine}, nil
}

// Run executes the search until a termination condition fires and
// returns the best individual seen across all generations.
// Cancellation is a normal termination path, not an error.
func (m *Monitor) Run(ctx context.Context) (RunResult, error) {
	population, err := m.initializePopulation()
	if err != nil {
		return RunResult{}, err
	}

	result := RunResult{
		BestFitness:      SentinelFitness,
		BestGeneration:   -1,
		BestByGeneration: make([]float64, 0, m.cfg.Generations),
		Diagnostics:      make([]GenerationStep, 0, m.cfg.Generations),
	}
	sinceImprovement := 0

	for gen := 0; gen < m.cfg.Generations; gen++ {
		if ctx.Err() != nil {
			result.TerminationReason = TerminatedCancelled
			return result, nil
		}

		started := time.Now()
		scored := m.evaluatePopulation(ctx, population)
		sortScored(scored)
		result.FinalPopulation = scored

		improved := scored[0].Valid && scored[0].Fitness > result.BestFitness
		if improved || result.BestProgram == nil {
			result.BestProgram = scored[0].Program
			result.BestFitness = scored[0].Fitness
			result.BestGeneration = gen
		}
		if improved {
			sinceImprovement = 0
		} else {
			sinceImprovement++
		}

		step := summarizeGeneration(scored, gen, result.BestFitness, time.Since(started))
		result.BestByGeneration = append(result.BestByGeneration, step.BestFitness)
		result.Diagnostics = append(result.Diagnostics, step)
		for _, sink := range m.cfg.Sinks {
			// Best effort: a failing sink never aborts the search.
			_ = sink.RecordGeneration(step)
		}

		// Checked once per generation, first match wins: generation
		// count, fitness target, stagnation, cancellation.
		if gen == m.cfg.Generations-1 {
			result.TerminationReason = TerminatedGenerationLimit
			return result, nil
		}
		if m.cfg.FitnessGoalSet && scored[0].Valid && scored[0].Fitness >= m.cfg.FitnessGoal {
			result.TerminationReason = TerminatedFitnessGoal
			return result, nil
		}
		if m.cfg.StagnationWindow > 0 && sinceImprovement >= m.cfg.StagnationWindow {
			result.TerminationReason = TerminatedStagnation
			return result, nil
		}
		if ctx.Err() != nil {
			result.TerminationReason = TerminatedCancelled
			return result, nil
		}

		if m.cfg.RestartAfter > 0 && sinceImprovement > 0 && sinceImprovement%m.cfg.RestartAfter == 0 {
			population, err = m.restartPopulation(scored)
		} else {
			population, err = m.nextGeneration(ctx, scored)
		}
		if err != nil {
			return RunResult{}, err
		}
	}

	result.TerminationReason = TerminatedGenerationLimit
	return result, nil
}

func (m *Monitor) initializePopulation() ([]individual, error) {
	population := make([]individual, 0, m.cfg.PopulationSize)
	if m.cfg.WarmStart != nil {
		// The seed enters generation 0 verbatim, so the search never
		// starts worse than the seed for at least one individual.
		population = append(population, individual{program: m.cfg.WarmStart})
	}
	for len(population) < m.cfg.PopulationSize {
		p, err := program.Generate(m.cfg.Registry, m.cfg.ReturnType, m.cfg.MaxDepth, m.rng)
		if err != nil {
			return nil, fmt.Errorf("initialize population: %w", err)
		}
		population = append(population, individual{program: p})
	}
	return population, nil
}

// evaluatePopulation scores the not-yet-scored individuals
// concurrently; already-scored individuals (carried elites) keep their
// existing score. Programs and the registry are immutable, so workers
// share them without locking; results land at their original index to
// keep ordering deterministic.
func (m *Monitor) evaluatePopulation(ctx context.Context, population []individual) []ScoredProgram {
	scored := make([]ScoredProgram, len(population))
	pending := make([]int, 0, len(population))
	for i, ind := range population {
		if ind.scored {
			scored[i] = ScoredProgram{Program: ind.program, Fitness: ind.fitness, Valid: ind.valid}
			continue
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return scored
	}

	workerCount := m.cfg.Workers
	if workerCount > len(pending) {
		workerCount = len(pending)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				p := population[idx].program
				if ctx.Err() != nil {
					scored[idx] = ScoredProgram{Program: p, Fitness: SentinelFitness}
					continue
				}
				fitness, err := m.cfg.Scape.Evaluate(ctx, p)
				if err != nil {
					scored[idx] = ScoredProgram{Program: p, Fitness: SentinelFitness}
					continue
				}
				scored[idx] = ScoredProgram{Program: p, Fitness: fitness, Valid: true}
			}
		}()
	}

	for _, i := range pending {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return scored
}

func (m *Monitor) nextGeneration(ctx context.Context, ranked []ScoredProgram) ([]individual, error) {
	next := make([]individual, 0, m.cfg.PopulationSize)
	seen := make(map[string]struct{}, m.cfg.PopulationSize)

	for i := 0; i < m.cfg.EliteCount && i < len(ranked); i++ {
		next = append(next, carriedElite(ranked[i]))
		seen[program.ComputeSignature(ranked[i].Program).Fingerprint] = struct{}{}
	}

	crossover := &SubtreeCrossover{Rand: m.rng, MaxDepth: m.cfg.MaxDepth}
	for len(next) < m.cfg.PopulationSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		child, err := m.produceOffspring(ctx, ranked, crossover)
		if err != nil {
			return nil, err
		}

		// Equivalent programs waste evaluations; replace duplicates
		// with a fresh random program, accepting whatever one retry
		// yields so reproduction stays bounded.
		fingerprint := program.ComputeSignature(child).Fingerprint
		if _, duplicate := seen[fingerprint]; duplicate {
			fresh, err := program.Generate(m.cfg.Registry, m.cfg.ReturnType, m.cfg.MaxDepth, m.rng)
			if err != nil {
				return nil, err
			}
			child = fresh
			fingerprint = program.ComputeSignature(child).Fingerprint
		}

		seen[fingerprint] = struct{}{}
		next = append(next, individual{program: child})
	}
	return next, nil
}

// carriedElite copies an elite into the next generation with its score
// intact, so it bypasses both mutation and re-evaluation.
func carriedElite(s ScoredProgram) individual {
	return individual{program: s.Program, fitness: s.Fitness, valid: s.Valid, scored: true}
}

func (m *Monitor) produceOffspring(ctx context.Context, ranked []ScoredProgram, crossover *SubtreeCrossover) (*program.Program, error) {
	parent, err := m.cfg.Selector.PickParent(m.rng, ranked, m.cfg.EliteCount)
	if err != nil {
		return nil, err
	}

	if m.cfg.CrossoverRate > 0 && m.rng.Float64() < m.cfg.CrossoverRate {
		donor, err := m.cfg.Selector.PickParent(m.rng, ranked, m.cfg.EliteCount)
		if err != nil {
			return nil, err
		}
		child, err := crossover.Combine(ctx, parent, donor)
		if err == nil {
			return child, nil
		}
		if !errors.Is(err, ErrNoMutationChoice) {
			return nil, err
		}
		// No compatible graft point; fall through to mutation.
	}

	child, err := m.engine.Mutate(ctx, parent)
	if errors.Is(err, ErrMutationExhausted) {
		// The parent offers nothing to mutate; regenerate from scratch.
		return program.Generate(m.cfg.Registry, m.cfg.ReturnType, m.cfg.MaxDepth, m.rng)
	}
	if err != nil {
		return nil, err
	}
	return child, nil
}

// restartPopulation keeps the elites and regenerates everything else,
// kicking a stalled search out of its basin.
func (m *Monitor) restartPopulation(ranked []ScoredProgram) ([]individual, error) {
	next := make([]individual, 0, m.cfg.PopulationSize)
	for i := 0; i < m.cfg.EliteCount && i < len(ranked); i++ {
		next = append(next, carriedElite(ranked[i]))
	}
	for len(next) < m.cfg.PopulationSize {
		p, err := program.Generate(m.cfg.Registry, m.cfg.ReturnType, m.cfg.MaxDepth, m.rng)
		if err != nil {
			return nil, err
		}
		next = append(next, individual{program: p})
	}
	return next, nil
}

func sortScored(scored []ScoredProgram) {
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Fitness > scored[j].Fitness
	})
}

func summarizeGeneration(scored []ScoredProgram, generation int, overallBest float64, elapsed time.Duration) GenerationStep {
	total := 0.0
	valid := 0
	fingerprints := make(map[string]struct{}, len(scored))
	for _, item := range scored {
		if item.Valid {
			total += item.Fitness
			valid++
		}
		fingerprints[program.ComputeSignature(item.Program).Fingerprint] = struct{}{}
	}

	mean := 0.0
	if valid > 0 {
		mean = total / float64(valid)
	}
	worst := scored[len(scored)-1].Fitness

	return GenerationStep{
		Generation:         generation,
		PopulationSize:     len(scored),
		BestFitness:        scored[0].Fitness,
		MeanFitness:        mean,
		WorstFitness:       worst,
		ValidPercent:       100 * float64(valid) / float64(len(scored)),
		UniquePrograms:     len(fingerprints),
		OverallBestFitness: overallBest,
		Best:               scored[0].Program,
		Elapsed:            elapsed,
	}
}
