package evo

import (
	"fmt"
	"math/rand"

	"progsearch/internal/program"
)

// ScoredProgram pairs a program with its evaluated fitness. Valid is
// false when the evaluator failed and the fitness is the sentinel
// worst value.
type ScoredProgram struct {
	Program *program.Program
	Fitness float64
	Valid   bool
}

// Selector chooses a parent from a fitness-ranked population. Ranked
// slices are ordered best first; ties preserve evaluation order, which
// keeps selection deterministic for a fixed rng stream.
type Selector interface {
	Name() string
	PickParent(rng *rand.Rand, ranked []ScoredProgram, eliteCount int) (*program.Program, error)
}

// TournamentSelector samples Size distinct candidates uniformly and
// keeps the best. Size 1 degrades to pure random selection.
type TournamentSelector struct {
	Size int
}

func (TournamentSelector) Name() string {
	return "tournament"
}

func (s TournamentSelector) PickParent(rng *rand.Rand, ranked []ScoredProgram, _ int) (*program.Program, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if len(ranked) == 0 {
		return nil, fmt.Errorf("ranked population is empty")
	}
	size := s.Size
	if size <= 0 {
		size = 2
	}
	if size > len(ranked) {
		size = len(ranked)
	}

	// Sample without replacement within one tournament. Ranked order
	// is best-first, so the smallest sampled index is the winner and
	// ties resolve toward the earlier individual.
	best := -1
	for _, idx := range rng.Perm(len(ranked))[:size] {
		if best == -1 || idx < best {
			best = idx
		}
	}
	return ranked[best].Program, nil
}

// RandomSelector picks uniformly, the k=1 tournament baseline.
type RandomSelector struct{}

func (RandomSelector) Name() string {
	return "random"
}

func (RandomSelector) PickParent(rng *rand.Rand, ranked []ScoredProgram, _ int) (*program.Program, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if len(ranked) == 0 {
		return nil, fmt.Errorf("ranked population is empty")
	}
	return ranked[rng.Intn(len(ranked))].Program, nil
}

// EliteSelector picks uniformly from the top elite set.
type EliteSelector struct{}

func (EliteSelector) Name() string {
	return "elite"
}

func (EliteSelector) PickParent(rng *rand.Rand, ranked []ScoredProgram, eliteCount int) (*program.Program, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if eliteCount <= 0 || eliteCount > len(ranked) {
		return nil, fmt.Errorf("invalid elite count: %d", eliteCount)
	}
	return ranked[rng.Intn(eliteCount)].Program, nil
}
