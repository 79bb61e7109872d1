package evo

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"progsearch/internal/lang"
	"progsearch/internal/program"
)

var (
	ErrNoMutationChoice  = errors.New("no mutation choice available")
	ErrMutationExhausted = errors.New("program has no mutable positions")
)

// SubtreeReplacement regenerates a random position as a fresh subtree
// of the same type. The regeneration budget is the tree's maximum
// allowed depth minus the position's depth, so mutated programs stay
// inside the configured depth bound.
type SubtreeReplacement struct {
	Registry *lang.Registry
	Rand     *rand.Rand
	MaxDepth int
}

func (o *SubtreeReplacement) Name() string {
	return "subtree_replacement"
}

func (o *SubtreeReplacement) Apply(_ context.Context, parent *program.Program) (*program.Program, error) {
	if o == nil || o.Rand == nil {
		return nil, errors.New("random source is required")
	}
	if o.Registry == nil {
		return nil, errors.New("registry is required")
	}

	paths := parent.Paths()
	path := paths[o.Rand.Intn(len(paths))]
	target, err := parent.NodeAt(path)
	if err != nil {
		return nil, err
	}

	budget := o.MaxDepth - len(path)
	if budget < 0 {
		budget = 0
	}
	replacement, err := program.GenerateNode(o.Registry, target.Type(), budget, o.Rand)
	if err != nil {
		return nil, err
	}
	return parent.ReplaceAt(path, replacement)
}

// TerminalPerturbation resamples one terminal value, leaving the tree
// structure unchanged. A resample that lands on an equal value is
// accepted rather than retried, keeping mutation cost bounded.
type TerminalPerturbation struct {
	Registry *lang.Registry
	Rand     *rand.Rand
}

func (o *TerminalPerturbation) Name() string {
	return "terminal_perturbation"
}

func (o *TerminalPerturbation) Apply(_ context.Context, parent *program.Program) (*program.Program, error) {
	if o == nil || o.Rand == nil {
		return nil, errors.New("random source is required")
	}

	candidates := make([][]int, 0, parent.Size())
	for _, path := range parent.TerminalPaths() {
		node, err := parent.NodeAt(path)
		if err != nil {
			return nil, err
		}
		if node.Terminal.Variable || node.Terminal.Generate == nil {
			continue
		}
		candidates = append(candidates, path)
	}
	if len(candidates) == 0 {
		return nil, ErrNoMutationChoice
	}

	path := candidates[o.Rand.Intn(len(candidates))]
	node, err := parent.NodeAt(path)
	if err != nil {
		return nil, err
	}
	fresh := program.NewTerminal(node.Terminal, node.Terminal.Generate(o.Rand))
	return parent.ReplaceAt(path, fresh)
}

// FunctionSwap replaces one call's function spec with a different
// registered function of identical parameter and return types. With no
// alternate available it fails softly with ErrNoMutationChoice so the
// engine can fall back to subtree replacement; it never returns the
// unmutated program.
type FunctionSwap struct {
	Registry *lang.Registry
	Rand     *rand.Rand
}

func (o *FunctionSwap) Name() string {
	return "function_swap"
}

func (o *FunctionSwap) Apply(_ context.Context, parent *program.Program) (*program.Program, error) {
	if o == nil || o.Rand == nil {
		return nil, errors.New("random source is required")
	}
	if o.Registry == nil {
		return nil, errors.New("registry is required")
	}

	callPaths := parent.CallPaths()
	if len(callPaths) == 0 {
		return nil, ErrNoMutationChoice
	}

	order := o.Rand.Perm(len(callPaths))
	for _, idx := range order {
		path := callPaths[idx]
		node, err := parent.NodeAt(path)
		if err != nil {
			return nil, err
		}

		alternates := make([]lang.FunctionSpec, 0, 4)
		for _, spec := range o.Registry.FunctionsWithSignature(node.Fn.Params, node.Fn.Returns) {
			if spec.Name == node.Fn.Name {
				continue
			}
			alternates = append(alternates, spec)
		}
		if len(alternates) == 0 {
			continue
		}

		swapped := alternates[o.Rand.Intn(len(alternates))]
		replacement, err := program.NewCall(swapped, node.Children...)
		if err != nil {
			return nil, err
		}
		return parent.ReplaceAt(path, replacement)
	}
	return nil, ErrNoMutationChoice
}

// Hoist lifts a strictly smaller subtree of matching type into a call
// position, shrinking the tree. It is the tree analog of removing a
// statement from a linear program.
type Hoist struct {
	Rand *rand.Rand
}

func (o *Hoist) Name() string {
	return "hoist"
}

func (o *Hoist) Apply(_ context.Context, parent *program.Program) (*program.Program, error) {
	if o == nil || o.Rand == nil {
		return nil, errors.New("random source is required")
	}

	callPaths := parent.CallPaths()
	if len(callPaths) == 0 {
		return nil, ErrNoMutationChoice
	}

	order := o.Rand.Perm(len(callPaths))
	for _, idx := range order {
		path := callPaths[idx]
		node, err := parent.NodeAt(path)
		if err != nil {
			return nil, err
		}

		descendants := descendantsOfType(node, node.Type())
		if len(descendants) == 0 {
			continue
		}
		lifted := descendants[o.Rand.Intn(len(descendants))]
		return parent.ReplaceAt(path, lifted)
	}
	return nil, ErrNoMutationChoice
}

func descendantsOfType(node *program.Node, t lang.Type) []*program.Node {
	out := make([]*program.Node, 0, 4)
	var walk func(n *program.Node)
	walk = func(n *program.Node) {
		if n != node && n.Type() == t {
			out = append(out, n)
		}
		for _, child := range n.Children {
			walk(child)
		}
	}
	walk(node)
	return out
}

// SubtreeCrossover grafts a type-compatible subtree from a donor into
// a random position of the receiver. MaxDepth bounds the offspring's
// depth the same way SubtreeReplacement bounds regenerated subtrees;
// zero leaves it unbounded.
type SubtreeCrossover struct {
	Rand     *rand.Rand
	MaxDepth int
}

func (o *SubtreeCrossover) Name() string {
	return "subtree_crossover"
}

func (o *SubtreeCrossover) Combine(_ context.Context, receiver, donor *program.Program) (*program.Program, error) {
	if o == nil || o.Rand == nil {
		return nil, errors.New("random source is required")
	}
	if receiver == nil || donor == nil {
		return nil, errors.New("both parents are required")
	}

	paths := receiver.Paths()
	order := o.Rand.Perm(len(paths))
	for _, idx := range order {
		path := paths[idx]
		target, err := receiver.NodeAt(path)
		if err != nil {
			return nil, err
		}

		budget := o.MaxDepth - len(path)
		compatible := make([]*program.Node, 0, donor.Size())
		for _, donorPath := range donor.Paths() {
			sub, err := donor.SubtreeAt(donorPath)
			if err != nil {
				return nil, err
			}
			if sub.RootType() != target.Type() {
				continue
			}
			if o.MaxDepth > 0 && sub.Depth() > budget {
				continue
			}
			compatible = append(compatible, sub.Root())
		}
		if len(compatible) == 0 {
			continue
		}

		graft := compatible[o.Rand.Intn(len(compatible))]
		return receiver.ReplaceAt(path, graft)
	}
	return nil, ErrNoMutationChoice
}

// Engine selects a mutation strategy by configured weight, applies it,
// and routes soft failures through the subtree-replacement fallback.
type Engine struct {
	registry *lang.Registry
	rng      *rand.Rand
	policy   []WeightedMutation
	fallback *SubtreeReplacement
}

type EngineConfig struct {
	Registry *lang.Registry
	Rand     *rand.Rand
	MaxDepth int
	Policy   []WeightedMutation
}

// DefaultPolicy wires the three core strategies with the registry and
// shared rng: subtree replacement, terminal perturbation, function
// swap, and hoist at a low weight.
func DefaultPolicy(reg *lang.Registry, rng *rand.Rand, maxDepth int) []WeightedMutation {
	return []WeightedMutation{
		{Operator: &SubtreeReplacement{Registry: reg, Rand: rng, MaxDepth: maxDepth}, Weight: 0.4},
		{Operator: &TerminalPerturbation{Registry: reg, Rand: rng}, Weight: 0.3},
		{Operator: &FunctionSwap{Registry: reg, Rand: rng}, Weight: 0.2},
		{Operator: &Hoist{Rand: rng}, Weight: 0.1},
	}
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Rand == nil {
		return nil, errors.New("random source is required")
	}
	if cfg.MaxDepth < 0 {
		return nil, fmt.Errorf("max depth must be >= 0, got %d", cfg.MaxDepth)
	}
	if len(cfg.Policy) == 0 {
		cfg.Policy = DefaultPolicy(cfg.Registry, cfg.Rand, cfg.MaxDepth)
	}
	positive := false
	for i, item := range cfg.Policy {
		if item.Operator == nil {
			return nil, fmt.Errorf("mutation policy operator is required at index %d", i)
		}
		if item.Weight < 0 {
			return nil, fmt.Errorf("mutation policy weight must be >= 0 at index %d", i)
		}
		if item.Weight > 0 {
			positive = true
		}
	}
	if !positive {
		return nil, errors.New("mutation policy requires at least one positive weight")
	}

	return &Engine{
		registry: cfg.Registry,
		rng:      cfg.Rand,
		policy:   cfg.Policy,
		fallback: &SubtreeReplacement{Registry: cfg.Registry, Rand: cfg.Rand, MaxDepth: cfg.MaxDepth},
	}, nil
}

// Mutate produces a new, type-preserving program from the parent. A
// strategy without a valid choice falls back to subtree replacement.
// For a single-terminal program whose generator cannot produce a
// different value, a bounded number of attempts is made before
// reporting ErrMutationExhausted; the caller recovers by regenerating
// from scratch.
func (e *Engine) Mutate(ctx context.Context, parent *program.Program) (*program.Program, error) {
	if parent == nil {
		return nil, errors.New("parent program is required")
	}

	const singleNodeAttempts = 4
	attempts := 1
	if parent.Size() == 1 {
		attempts = singleNodeAttempts
	}

	parentFingerprint := program.ComputeSignature(parent).Fingerprint
	for attempt := 0; attempt < attempts; attempt++ {
		operator := e.choose()
		child, err := operator.Apply(ctx, parent)
		if errors.Is(err, ErrNoMutationChoice) {
			child, err = e.fallback.Apply(ctx, parent)
		}
		if errors.Is(err, ErrNoMutationChoice) {
			return nil, ErrMutationExhausted
		}
		if err != nil {
			return nil, fmt.Errorf("mutate with %s: %w", operator.Name(), err)
		}

		if parent.Size() > 1 {
			return child, nil
		}
		if program.ComputeSignature(child).Fingerprint != parentFingerprint {
			return child, nil
		}
	}
	return nil, ErrMutationExhausted
}

func (e *Engine) choose() Operator {
	total := 0.0
	for _, item := range e.policy {
		total += item.Weight
	}
	pick := e.rng.Float64() * total
	acc := 0.0
	for _, item := range e.policy {
		acc += item.Weight
		if pick <= acc {
			return item.Operator
		}
	}
	return e.policy[len(e.policy)-1].Operator
}
