package program

import (
	"errors"
	"math/rand"
	"testing"
)

func TestGenerateProducesTargetTypeWithinDepth(t *testing.T) {
	reg := arithmeticRegistry(t)

	for seed := int64(0); seed < 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		p, err := Generate(reg, "number", 3, rng)
		if err != nil {
			t.Fatalf("seed %d: generate: %v", seed, err)
		}
		if p.RootType() != "number" {
			t.Fatalf("seed %d: expected number root type, got %s", seed, p.RootType())
		}
		if p.Depth() > 3 {
			t.Fatalf("seed %d: depth %d exceeds budget 3", seed, p.Depth())
		}
	}
}

func TestGenerateIsDeterministicForFixedSeed(t *testing.T) {
	reg := arithmeticRegistry(t)

	first, err := Generate(reg, "number", 4, rand.New(rand.NewSource(42)))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := Generate(reg, "number", 4, rand.New(rand.NewSource(42)))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if !first.Equal(second) {
		t.Fatalf("expected identical programs, got %s vs %s", first.Render(), second.Render())
	}
}

func TestGenerateForcesTerminalAtZeroBudget(t *testing.T) {
	reg := arithmeticRegistry(t)

	for seed := int64(0); seed < 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		p, err := Generate(reg, "number", 0, rng)
		if err != nil {
			t.Fatalf("seed %d: generate: %v", seed, err)
		}
		if p.Size() != 1 {
			t.Fatalf("seed %d: expected single terminal, got size %d", seed, p.Size())
		}
	}
}

func TestGenerateWithTerminalOnlyRegistryReturnsTerminal(t *testing.T) {
	reg := singleTerminalRegistry(t, 5.0)

	p, err := Generate(reg, "number", 10, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if p.Size() != 1 || p.Depth() != 0 {
		t.Fatalf("expected bare terminal, got size=%d depth=%d", p.Size(), p.Depth())
	}
	if p.Render() != "5" {
		t.Fatalf("unexpected render: %s", p.Render())
	}
}

func TestGenerateFailsForUnknownType(t *testing.T) {
	reg := arithmeticRegistry(t)

	_, err := Generate(reg, "vector", 3, rand.New(rand.NewSource(1)))
	if !errors.Is(err, ErrNoProducer) {
		t.Fatalf("expected ErrNoProducer, got %v", err)
	}
}

func TestGenerateRequiresFinalizedRegistry(t *testing.T) {
	reg := arithmeticRegistryOpen(t)

	_, err := Generate(reg, "number", 3, rand.New(rand.NewSource(1)))
	if err == nil {
		t.Fatal("expected error for open registry")
	}
}
