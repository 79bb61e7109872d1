package program

import (
	"errors"
	"math/rand"
	"testing"

	"progsearch/internal/lang"
)

func arithmeticRegistry(t *testing.T) *lang.Registry {
	t.Helper()
	reg, err := lang.NewArithmeticRegistry(lang.ArithmeticOptions{Variables: []string{"x"}})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func constNode(t *testing.T, reg *lang.Registry, value float64) *Node {
	t.Helper()
	spec, ok := reg.Terminal("const")
	if !ok {
		t.Fatal("const terminal missing")
	}
	return NewTerminal(spec, value)
}

func callNode(t *testing.T, reg *lang.Registry, fn string, children ...*Node) *Node {
	t.Helper()
	spec, ok := reg.Function(fn)
	if !ok {
		t.Fatalf("function %s missing", fn)
	}
	node, err := NewCall(spec, children...)
	if err != nil {
		t.Fatalf("build %s call: %v", fn, err)
	}
	return node
}

func addProgram(t *testing.T, reg *lang.Registry, a, b float64) *Program {
	t.Helper()
	p, err := New(callNode(t, reg, "add", constNode(t, reg, a), constNode(t, reg, b)))
	if err != nil {
		t.Fatalf("build program: %v", err)
	}
	return p
}

func TestNewCallRejectsArityMismatch(t *testing.T) {
	reg := arithmeticRegistry(t)
	spec, _ := reg.Function("add")
	_, err := NewCall(spec, constNode(t, reg, 1))
	if !errors.Is(err, ErrArityMismatch) {
		t.Fatalf("expected ErrArityMismatch, got %v", err)
	}
}

func TestNewCallRejectsChildTypeMismatch(t *testing.T) {
	reg := lang.NewRegistry()
	if err := reg.RegisterFunction(lang.FunctionSpec{
		Name:    "not",
		Params:  []lang.Type{"bool"},
		Returns: "bool",
		Eval:    func(args []any) (any, error) { return !args[0].(bool), nil },
	}); err != nil {
		t.Fatalf("register not: %v", err)
	}
	if err := reg.RegisterTerminal(lang.TerminalSpec{
		Name:     "flag",
		Type:     "bool",
		Generate: func(rng *rand.Rand) any { return rng.Intn(2) == 0 },
	}); err != nil {
		t.Fatalf("register flag: %v", err)
	}
	if err := reg.RegisterTerminal(lang.TerminalSpec{
		Name:     "num",
		Type:     lang.TypeNumber,
		Generate: func(rng *rand.Rand) any { return 1.0 },
	}); err != nil {
		t.Fatalf("register num: %v", err)
	}
	if err := reg.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	numSpec, _ := reg.Terminal("num")
	notSpec, _ := reg.Function("not")
	_, err := NewCall(notSpec, NewTerminal(numSpec, 1.0))
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
}

func TestProgramSizeDepthAndRender(t *testing.T) {
	reg := arithmeticRegistry(t)
	inner := callNode(t, reg, "mul", constNode(t, reg, 2), constNode(t, reg, 3))
	root := callNode(t, reg, "add", inner, constNode(t, reg, 4))
	p, err := New(root)
	if err != nil {
		t.Fatalf("build program: %v", err)
	}

	if p.Size() != 5 {
		t.Fatalf("expected size 5, got %d", p.Size())
	}
	if p.Depth() != 2 {
		t.Fatalf("expected depth 2, got %d", p.Depth())
	}
	if p.RootType() != lang.TypeNumber {
		t.Fatalf("expected number root type, got %s", p.RootType())
	}
	if got := p.Render(); got != "add(mul(2, 3), 4)" {
		t.Fatalf("unexpected render: %s", got)
	}
}

func TestEvalReducesTree(t *testing.T) {
	reg := arithmeticRegistry(t)
	inner := callNode(t, reg, "mul", constNode(t, reg, 2), constNode(t, reg, 3))
	root := callNode(t, reg, "add", inner, constNode(t, reg, 4))
	p, err := New(root)
	if err != nil {
		t.Fatalf("build program: %v", err)
	}

	out, err := p.Eval(nil)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if out.(float64) != 10 {
		t.Fatalf("expected 10, got %v", out)
	}
}

func TestEvalResolvesVariablesFromEnv(t *testing.T) {
	reg := arithmeticRegistry(t)
	xSpec, ok := reg.Terminal("x")
	if !ok {
		t.Fatal("x terminal missing")
	}
	root := callNode(t, reg, "add", NewTerminal(xSpec, nil), constNode(t, reg, 1))
	p, err := New(root)
	if err != nil {
		t.Fatalf("build program: %v", err)
	}

	out, err := p.Eval(Env{"x": 41.0})
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if out.(float64) != 42 {
		t.Fatalf("expected 42, got %v", out)
	}

	_, err = p.Eval(nil)
	if !errors.Is(err, ErrUnboundVar) {
		t.Fatalf("expected ErrUnboundVar, got %v", err)
	}
}

func TestNodeAtRejectsInvalidPath(t *testing.T) {
	reg := arithmeticRegistry(t)
	p := addProgram(t, reg, 8, 9)

	if _, err := p.NodeAt([]int{2}); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath for out-of-range index, got %v", err)
	}
	if _, err := p.NodeAt([]int{0, 0}); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath below a terminal, got %v", err)
	}
}

func TestReplaceAtSharesUntouchedSubtrees(t *testing.T) {
	reg := arithmeticRegistry(t)
	left := callNode(t, reg, "mul", constNode(t, reg, 2), constNode(t, reg, 3))
	right := constNode(t, reg, 4)
	p, err := New(callNode(t, reg, "add", left, right))
	if err != nil {
		t.Fatalf("build program: %v", err)
	}

	next, err := p.ReplaceAt([]int{1}, constNode(t, reg, 7))
	if err != nil {
		t.Fatalf("replace: %v", err)
	}

	if got := next.Render(); got != "add(mul(2, 3), 7)" {
		t.Fatalf("unexpected render after replace: %s", got)
	}
	if got := p.Render(); got != "add(mul(2, 3), 4)" {
		t.Fatalf("original mutated by replace: %s", got)
	}

	untouched, err := next.NodeAt([]int{0})
	if err != nil {
		t.Fatalf("node at: %v", err)
	}
	if untouched != left {
		t.Fatal("expected untouched subtree to be shared by reference")
	}
}

func TestReplaceAtRejectsTypeChange(t *testing.T) {
	reg := lang.NewRegistry()
	if err := reg.RegisterTerminal(lang.TerminalSpec{
		Name:     "num",
		Type:     lang.TypeNumber,
		Generate: func(rng *rand.Rand) any { return 1.0 },
	}); err != nil {
		t.Fatalf("register num: %v", err)
	}
	if err := reg.RegisterTerminal(lang.TerminalSpec{
		Name:     "flag",
		Type:     "bool",
		Generate: func(rng *rand.Rand) any { return true },
	}); err != nil {
		t.Fatalf("register flag: %v", err)
	}
	if err := reg.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	numSpec, _ := reg.Terminal("num")
	flagSpec, _ := reg.Terminal("flag")
	p, err := New(NewTerminal(numSpec, 1.0))
	if err != nil {
		t.Fatalf("build program: %v", err)
	}

	_, err = p.ReplaceAt(nil, NewTerminal(flagSpec, true))
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
}

func TestPathsEnumeratePreorder(t *testing.T) {
	reg := arithmeticRegistry(t)
	inner := callNode(t, reg, "mul", constNode(t, reg, 2), constNode(t, reg, 3))
	p, err := New(callNode(t, reg, "add", inner, constNode(t, reg, 4)))
	if err != nil {
		t.Fatalf("build program: %v", err)
	}

	paths := p.Paths()
	if len(paths) != p.Size() {
		t.Fatalf("expected %d paths, got %d", p.Size(), len(paths))
	}
	if len(paths[0]) != 0 {
		t.Fatal("expected root path first")
	}
	if len(p.CallPaths()) != 2 {
		t.Fatalf("expected 2 call paths, got %d", len(p.CallPaths()))
	}
	if len(p.TerminalPaths()) != 3 {
		t.Fatalf("expected 3 terminal paths, got %d", len(p.TerminalPaths()))
	}
}

func TestSubtreeAt(t *testing.T) {
	reg := arithmeticRegistry(t)
	inner := callNode(t, reg, "mul", constNode(t, reg, 2), constNode(t, reg, 3))
	p, err := New(callNode(t, reg, "add", inner, constNode(t, reg, 4)))
	if err != nil {
		t.Fatalf("build program: %v", err)
	}

	sub, err := p.SubtreeAt([]int{0})
	if err != nil {
		t.Fatalf("subtree at: %v", err)
	}
	if got := sub.Render(); got != "mul(2, 3)" {
		t.Fatalf("unexpected subtree render: %s", got)
	}
	if sub.Size() != 3 || sub.Depth() != 1 {
		t.Fatalf("unexpected subtree dimensions: size=%d depth=%d", sub.Size(), sub.Depth())
	}
}
