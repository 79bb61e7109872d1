package lang

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
)

var (
	ErrDuplicateSpec     = errors.New("spec already registered")
	ErrUnreachableType   = errors.New("type has no producer")
	ErrRegistryFinalized = errors.New("registry is finalized")
	ErrRegistryOpen      = errors.New("registry is not finalized")
	ErrSpecNotFound      = errors.New("spec not found")
)

// Type identifies a semantic value category. Types are compared by
// equality only; there is no subtyping.
type Type string

// EvalFunc applies a registered function to already-evaluated argument
// values. It must be pure.
type EvalFunc func(args []any) (any, error)

// GeneratorFunc samples a literal value for a terminal.
type GeneratorFunc func(rng *rand.Rand) any

// FunctionSpec declares a callable in the search vocabulary. Arity is
// fixed by Params; any call node built from this spec carries exactly
// one child per parameter.
type FunctionSpec struct {
	Name    string
	Params  []Type
	Returns Type
	Eval    EvalFunc
}

// TerminalSpec declares a leaf in the search vocabulary. A Variable
// terminal produces no literal value; it is resolved against the
// evaluation environment by name.
type TerminalSpec struct {
	Name     string
	Type     Type
	Generate GeneratorFunc
	Variable bool
}

// Registry owns the typed vocabulary one search run draws from. It is
// constructed per run, finalized once, and thereafter read-only, so it
// can be shared across evaluation workers without locking concerns.
type Registry struct {
	mu        sync.RWMutex
	finalized bool

	functions map[string]FunctionSpec
	terminals map[string]TerminalSpec

	functionsByReturn map[Type][]string
	terminalsByType   map[Type][]string
}

func NewRegistry() *Registry {
	return &Registry{
		functions:         make(map[string]FunctionSpec),
		terminals:         make(map[string]TerminalSpec),
		functionsByReturn: make(map[Type][]string),
		terminalsByType:   make(map[Type][]string),
	}
}

// RegisterFunction adds a function spec. The spec name is its identity;
// registering the same name twice fails with ErrDuplicateSpec.
func (r *Registry) RegisterFunction(spec FunctionSpec) error {
	if spec.Name == "" {
		return errors.New("function name is required")
	}
	if spec.Returns == "" {
		return errors.New("function return type is required")
	}
	if spec.Eval == nil {
		return fmt.Errorf("function %s: eval is required", spec.Name)
	}
	for i, param := range spec.Params {
		if param == "" {
			return fmt.Errorf("function %s: parameter type is required at index %d", spec.Name, i)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return ErrRegistryFinalized
	}
	if _, exists := r.functions[spec.Name]; exists {
		return fmt.Errorf("%w: function %s", ErrDuplicateSpec, spec.Name)
	}
	if _, exists := r.terminals[spec.Name]; exists {
		return fmt.Errorf("%w: %s is already a terminal", ErrDuplicateSpec, spec.Name)
	}

	r.functions[spec.Name] = spec
	r.functionsByReturn[spec.Returns] = append(r.functionsByReturn[spec.Returns], spec.Name)
	return nil
}

// RegisterTerminal adds a terminal spec. Non-variable terminals must
// carry a generator so the builder and perturbation mutation can sample
// fresh values.
func (r *Registry) RegisterTerminal(spec TerminalSpec) error {
	if spec.Name == "" {
		return errors.New("terminal name is required")
	}
	if spec.Type == "" {
		return fmt.Errorf("terminal %s: type is required", spec.Name)
	}
	if !spec.Variable && spec.Generate == nil {
		return fmt.Errorf("terminal %s: generator is required", spec.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return ErrRegistryFinalized
	}
	if _, exists := r.terminals[spec.Name]; exists {
		return fmt.Errorf("%w: terminal %s", ErrDuplicateSpec, spec.Name)
	}
	if _, exists := r.functions[spec.Name]; exists {
		return fmt.Errorf("%w: %s is already a function", ErrDuplicateSpec, spec.Name)
	}

	r.terminals[spec.Name] = spec
	r.terminalsByType[spec.Type] = append(r.terminalsByType[spec.Type], spec.Name)
	return nil
}

// Finalize freezes the registry and validates closure: every type that
// appears as a function parameter must have at least one producer, and
// at least one terminal producer so that depth-bounded generation can
// always terminate. A closure violation here is a construction error;
// deferring it would corrupt programs mid-mutation.
func (r *Registry) Finalize() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return nil
	}
	if len(r.terminals) == 0 {
		return fmt.Errorf("registry requires at least one terminal")
	}

	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := r.functions[name]
		for i, param := range spec.Params {
			if len(r.terminalsByType[param]) == 0 && len(r.functionsByReturn[param]) == 0 {
				return fmt.Errorf("%w: %s (parameter %d of %s)", ErrUnreachableType, param, i, name)
			}
			if len(r.terminalsByType[param]) == 0 {
				return fmt.Errorf("%w: %s has no terminal producer (parameter %d of %s)", ErrUnreachableType, param, i, name)
			}
		}
	}

	for returns := range r.functionsByReturn {
		sort.Strings(r.functionsByReturn[returns])
	}
	for typ := range r.terminalsByType {
		sort.Strings(r.terminalsByType[typ])
	}

	r.finalized = true
	return nil
}

func (r *Registry) Finalized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.finalized
}

// FunctionsReturning lists function specs producing the given type, in
// a deterministic order.
func (r *Registry) FunctionsReturning(t Type) []FunctionSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := r.functionsByReturn[t]
	specs := make([]FunctionSpec, 0, len(names))
	for _, name := range names {
		specs = append(specs, r.functions[name])
	}
	return specs
}

// TerminalsOf lists terminal specs of the given type, in a
// deterministic order.
func (r *Registry) TerminalsOf(t Type) []TerminalSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := r.terminalsByType[t]
	specs := make([]TerminalSpec, 0, len(names))
	for _, name := range names {
		specs = append(specs, r.terminals[name])
	}
	return specs
}

func (r *Registry) Function(name string) (FunctionSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.functions[name]
	return spec, ok
}

func (r *Registry) Terminal(name string) (TerminalSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.terminals[name]
	return spec, ok
}

// FunctionsWithSignature lists functions whose parameter sequence and
// return type match exactly. Function swap mutation uses this to find
// drop-in replacements for a call node.
func (r *Registry) FunctionsWithSignature(params []Type, returns Type) []FunctionSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := r.functionsByReturn[returns]
	specs := make([]FunctionSpec, 0, len(names))
	for _, name := range names {
		spec := r.functions[name]
		if !sameParams(spec.Params, params) {
			continue
		}
		specs = append(specs, spec)
	}
	return specs
}

func sameParams(a, b []Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
