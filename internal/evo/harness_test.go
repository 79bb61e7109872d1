package evo

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"progsearch/internal/lang"
	"progsearch/internal/program"
)

func arithmeticRegistry(t *testing.T) *lang.Registry {
	t.Helper()
	reg, err := lang.NewArithmeticRegistry(lang.ArithmeticOptions{})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func fixedTerminalRegistry(t *testing.T, values ...float64) *lang.Registry {
	t.Helper()
	reg := lang.NewRegistry()
	if err := reg.RegisterTerminal(lang.TerminalSpec{
		Name: "const",
		Type: lang.TypeNumber,
		Generate: func(rng *rand.Rand) any {
			return values[rng.Intn(len(values))]
		},
	}); err != nil {
		t.Fatalf("register const: %v", err)
	}
	if err := reg.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	return reg
}

func generateProgram(t *testing.T, reg *lang.Registry, depth int, seed int64) *program.Program {
	t.Helper()
	p, err := program.Generate(reg, lang.TypeNumber, depth, rand.New(rand.NewSource(seed)))
	if err != nil {
		t.Fatalf("generate program: %v", err)
	}
	return p
}

func constProgram(t *testing.T, reg *lang.Registry, value float64) *program.Program {
	t.Helper()
	spec, ok := reg.Terminal("const")
	if !ok {
		t.Fatal("const terminal missing")
	}
	p, err := program.New(program.NewTerminal(spec, value))
	if err != nil {
		t.Fatalf("build program: %v", err)
	}
	return p
}

func callProgram(t *testing.T, reg *lang.Registry, fn string, a, b float64) *program.Program {
	t.Helper()
	fnSpec, ok := reg.Function(fn)
	if !ok {
		t.Fatalf("function %s missing", fn)
	}
	constSpec, ok := reg.Terminal("const")
	if !ok {
		t.Fatal("const terminal missing")
	}
	root, err := program.NewCall(fnSpec, program.NewTerminal(constSpec, a), program.NewTerminal(constSpec, b))
	if err != nil {
		t.Fatalf("build call: %v", err)
	}
	p, err := program.New(root)
	if err != nil {
		t.Fatalf("build program: %v", err)
	}
	return p
}

// failingScape always reports an evaluation failure.
type failingScape struct{}

func (failingScape) Name() string { return "failing" }

func (failingScape) Evaluate(context.Context, *program.Program) (float64, error) {
	return 0, errors.New("boom")
}
