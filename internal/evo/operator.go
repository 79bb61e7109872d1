package evo

import (
	"context"

	"progsearch/internal/program"
)

// Operator produces a new program from a parent. Implementations never
// mutate the parent in place.
type Operator interface {
	Name() string
	Apply(ctx context.Context, parent *program.Program) (*program.Program, error)
}

// WeightedMutation pairs an operator with its selection weight.
type WeightedMutation struct {
	Operator Operator
	Weight   float64
}
