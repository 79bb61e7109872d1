package scape

import (
	"context"
	"math"

	"progsearch/internal/lang"
	"progsearch/internal/program"
)

// TargetValue scores closed programs by distance to a target constant.
// Fitness is the negated absolute error, so an exact match scores 0
// and 0 is the natural fitness goal.
type TargetValue struct {
	target float64
}

func NewTargetValue(target float64) *TargetValue {
	return &TargetValue{target: target}
}

func (s *TargetValue) Name() string {
	return "target_value"
}

func (s *TargetValue) Target() float64 {
	return s.target
}

func (s *TargetValue) Evaluate(_ context.Context, p *program.Program) (float64, error) {
	out, err := p.Eval(nil)
	if err != nil {
		return 0, err
	}
	value, err := lang.AsNumber(out)
	if err != nil {
		return 0, err
	}
	return -math.Abs(value - s.target), nil
}
