package scape

import (
	"context"
	"fmt"
	"math"

	"progsearch/internal/lang"
	"progsearch/internal/program"
)

// SamplePoint is one (input, expected output) pair.
type SamplePoint struct {
	X float64
	Y float64
}

// Regression scores programs with a free variable x against sample
// points. Fitness is negated mean squared error; non-finite outputs
// fail the evaluation so the monitor assigns the sentinel score.
type Regression struct {
	name    string
	varName string
	points  []SamplePoint
}

func NewRegression(name, varName string, points []SamplePoint) (*Regression, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("regression scape requires sample points")
	}
	if varName == "" {
		varName = "x"
	}
	if name == "" {
		name = "regression"
	}
	return &Regression{name: name, varName: varName, points: points}, nil
}

// NewQuadraticRegression samples x^2 + x + 1 over the configured
// range, a small symbolic-regression benchmark.
func NewQuadraticRegression(params Params) (*Regression, error) {
	count := params.SampleCount
	if count <= 0 {
		count = 20
	}
	lo, hi := params.Range[0], params.Range[1]
	if lo == 0 && hi == 0 {
		lo, hi = -5, 5
	}
	if lo >= hi {
		return nil, fmt.Errorf("regression range is inverted: [%v, %v]", lo, hi)
	}

	points := make([]SamplePoint, count)
	step := (hi - lo) / float64(count-1)
	for i := range points {
		x := lo + float64(i)*step
		points[i] = SamplePoint{X: x, Y: x*x + x + 1}
	}
	return NewRegression("quadratic_regression", "x", points)
}

func (s *Regression) Name() string {
	return s.name
}

func (s *Regression) Evaluate(ctx context.Context, p *program.Program) (float64, error) {
	totalSq := 0.0
	for _, point := range s.points {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		out, err := p.Eval(program.Env{s.varName: point.X})
		if err != nil {
			return 0, err
		}
		value, err := lang.AsNumber(out)
		if err != nil {
			return 0, err
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return 0, fmt.Errorf("non-finite output at x=%v", point.X)
		}
		diff := value - point.Y
		totalSq += diff * diff
	}
	return -totalSq / float64(len(s.points)), nil
}
