package program

import (
	"errors"
	"fmt"
	"math/rand"

	"progsearch/internal/lang"
)

var ErrNoProducer = errors.New("no producer for type")

// Generate builds a random well-typed program of the target type.
// Construction is top-down: at each position a producer of the
// required type is chosen uniformly among terminals and, while depth
// budget remains, functions. A terminal is forced once the budget is
// exhausted, which guarantees termination. Given the same rng stream
// and registry the result is identical, which warm-start replay and
// the determinism tests rely on.
func Generate(reg *lang.Registry, target lang.Type, maxDepth int, rng *rand.Rand) (*Program, error) {
	if reg == nil {
		return nil, errors.New("registry is required")
	}
	if !reg.Finalized() {
		return nil, lang.ErrRegistryOpen
	}
	if maxDepth < 0 {
		return nil, fmt.Errorf("max depth must be >= 0, got %d", maxDepth)
	}
	if rng == nil {
		return nil, errors.New("random source is required")
	}

	root, err := GenerateNode(reg, target, maxDepth, rng)
	if err != nil {
		return nil, err
	}
	return New(root)
}

// GenerateNode builds a random subtree of the target type within the
// given depth budget.
func GenerateNode(reg *lang.Registry, target lang.Type, budget int, rng *rand.Rand) (*Node, error) {
	terminals := reg.TerminalsOf(target)
	var functions []lang.FunctionSpec
	if budget > 0 {
		functions = reg.FunctionsReturning(target)
	}

	total := len(terminals) + len(functions)
	if total == 0 {
		// Unreachable for a registry that passed closure validation.
		return nil, fmt.Errorf("%w: %s", ErrNoProducer, target)
	}

	pick := rng.Intn(total)
	if pick < len(terminals) {
		return sampleTerminal(terminals[pick], rng), nil
	}

	fn := functions[pick-len(terminals)]
	children := make([]*Node, len(fn.Params))
	for i, param := range fn.Params {
		child, err := GenerateNode(reg, param, budget-1, rng)
		if err != nil {
			return nil, err
		}
		children[i] = child
	}
	return NewCall(fn, children...)
}

func sampleTerminal(spec lang.TerminalSpec, rng *rand.Rand) *Node {
	if spec.Variable {
		return NewTerminal(spec, nil)
	}
	return NewTerminal(spec, spec.Generate(rng))
}
