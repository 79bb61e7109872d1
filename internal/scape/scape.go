package scape

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"progsearch/internal/program"
)

// Scape evaluates a candidate program to a scalar fitness, higher is
// better. Implementations may be expensive or effectful; the search
// core only ever touches them through this interface, so their latency
// cannot corrupt in-memory invariants.
type Scape interface {
	Name() string
	Evaluate(ctx context.Context, p *program.Program) (float64, error)
}

var ErrScapeNotFound = errors.New("scape not found")

// Factory builds a scape from run parameters.
type Factory func(params Params) (Scape, error)

// Params carries scape-specific settings from the run configuration.
type Params struct {
	Target      float64
	SampleCount int
	Range       [2]float64
}

var scapeRegistry = struct {
	mu sync.RWMutex
	m  map[string]Factory
}{
	m: make(map[string]Factory),
}

func init() {
	MustRegister("target_value", func(params Params) (Scape, error) {
		return NewTargetValue(params.Target), nil
	})
	MustRegister("quadratic_regression", func(params Params) (Scape, error) {
		return NewQuadraticRegression(params)
	})
}

func Register(name string, factory Factory) error {
	if name == "" {
		return errors.New("scape name is required")
	}
	if factory == nil {
		return errors.New("scape factory is required")
	}

	scapeRegistry.mu.Lock()
	defer scapeRegistry.mu.Unlock()

	if _, exists := scapeRegistry.m[name]; exists {
		return fmt.Errorf("scape already registered: %s", name)
	}
	scapeRegistry.m[name] = factory
	return nil
}

func MustRegister(name string, factory Factory) {
	if err := Register(name, factory); err != nil {
		panic(err)
	}
}

func Resolve(name string, params Params) (Scape, error) {
	scapeRegistry.mu.RLock()
	factory, ok := scapeRegistry.m[name]
	scapeRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScapeNotFound, name)
	}
	return factory(params)
}

func List() []string {
	scapeRegistry.mu.RLock()
	defer scapeRegistry.mu.RUnlock()

	names := make([]string, 0, len(scapeRegistry.m))
	for name := range scapeRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
