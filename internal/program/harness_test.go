package program

import (
	"math/rand"
	"testing"

	"progsearch/internal/lang"
)

// singleTerminalRegistry has one constant terminal and no functions.
func singleTerminalRegistry(t *testing.T, value float64) *lang.Registry {
	t.Helper()
	reg := lang.NewRegistry()
	if err := reg.RegisterTerminal(lang.TerminalSpec{
		Name:     "const",
		Type:     lang.TypeNumber,
		Generate: func(rng *rand.Rand) any { return value },
	}); err != nil {
		t.Fatalf("register const: %v", err)
	}
	if err := reg.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	return reg
}

// arithmeticRegistryOpen mirrors the arithmetic vocabulary but skips
// finalization, for exercising the frozen-registry guards.
func arithmeticRegistryOpen(t *testing.T) *lang.Registry {
	t.Helper()
	reg := lang.NewRegistry()
	if err := reg.RegisterFunction(lang.FunctionSpec{
		Name:    "add",
		Params:  []lang.Type{lang.TypeNumber, lang.TypeNumber},
		Returns: lang.TypeNumber,
		Eval: func(args []any) (any, error) {
			a, _ := lang.AsNumber(args[0])
			b, _ := lang.AsNumber(args[1])
			return a + b, nil
		},
	}); err != nil {
		t.Fatalf("register add: %v", err)
	}
	if err := reg.RegisterTerminal(lang.TerminalSpec{
		Name:     "const",
		Type:     lang.TypeNumber,
		Generate: func(rng *rand.Rand) any { return float64(rng.Intn(10)) },
	}); err != nil {
		t.Fatalf("register const: %v", err)
	}
	return reg
}
