package program

import (
	"errors"
	"fmt"
	"strings"

	"progsearch/internal/lang"
)

var (
	ErrTypeMismatch   = errors.New("type mismatch")
	ErrInvalidPath    = errors.New("invalid node path")
	ErrUnboundVar     = errors.New("unbound variable")
	ErrEmptyProgram   = errors.New("program has no root")
	ErrUnknownSpec    = errors.New("unknown spec reference")
	ErrArityMismatch  = errors.New("arity mismatch")
	ErrEvalFailed     = errors.New("program evaluation failed")
	ErrNotConstructed = errors.New("node was not built through a constructor")
)

type NodeKind int

const (
	KindTerminal NodeKind = iota
	KindCall
)

// Node is one position in an expression tree: either a terminal
// holding a concrete value (or a variable reference) or a call holding
// a function spec with one child per parameter. Nodes are immutable by
// convention; every transformation builds new nodes and may share
// untouched subtrees, which is safe because nothing is ever written
// through a shared reference.
type Node struct {
	Kind NodeKind

	// Terminal fields.
	Terminal lang.TerminalSpec
	Value    any

	// Call fields.
	Fn       lang.FunctionSpec
	Children []*Node
}

// NewTerminal builds a terminal node. Variable terminals ignore the
// value and resolve against the evaluation environment by name.
func NewTerminal(spec lang.TerminalSpec, value any) *Node {
	if spec.Variable {
		value = nil
	}
	return &Node{Kind: KindTerminal, Terminal: spec, Value: value}
}

// NewCall builds a call node, validating child types against the spec's
// parameter types eagerly so an ill-typed tree can never exist.
func NewCall(fn lang.FunctionSpec, children ...*Node) (*Node, error) {
	if len(children) != len(fn.Params) {
		return nil, fmt.Errorf("%w: %s expects %d children, got %d", ErrArityMismatch, fn.Name, len(fn.Params), len(children))
	}
	for i, child := range children {
		if child == nil {
			return nil, fmt.Errorf("%w: %s child %d is nil", ErrTypeMismatch, fn.Name, i)
		}
		if child.Type() != fn.Params[i] {
			return nil, fmt.Errorf("%w: %s parameter %d wants %s, got %s", ErrTypeMismatch, fn.Name, i, fn.Params[i], child.Type())
		}
	}
	owned := make([]*Node, len(children))
	copy(owned, children)
	return &Node{Kind: KindCall, Fn: fn, Children: owned}, nil
}

// Type reports the value type this node produces.
func (n *Node) Type() lang.Type {
	switch n.Kind {
	case KindTerminal:
		return n.Terminal.Type
	case KindCall:
		return n.Fn.Returns
	default:
		return ""
	}
}

func (n *Node) size() int {
	total := 1
	for _, child := range n.Children {
		total += child.size()
	}
	return total
}

func (n *Node) depth() int {
	deepest := 0
	for _, child := range n.Children {
		if d := child.depth(); d > deepest {
			deepest = d
		}
	}
	if n.Kind == KindCall {
		return deepest + 1
	}
	return deepest
}

// Env binds variable terminal names to values for evaluation.
type Env map[string]any

// Eval reduces the subtree to a value. Exhaustive over node kinds: a
// new kind must be handled here before it can evaluate.
func (n *Node) Eval(env Env) (any, error) {
	switch n.Kind {
	case KindTerminal:
		if n.Terminal.Variable {
			value, ok := env[n.Terminal.Name]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnboundVar, n.Terminal.Name)
			}
			return value, nil
		}
		return n.Value, nil
	case KindCall:
		args := make([]any, len(n.Children))
		for i, child := range n.Children {
			value, err := child.Eval(env)
			if err != nil {
				return nil, err
			}
			args[i] = value
		}
		out, err := n.Fn.Eval(args)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrEvalFailed, n.Fn.Name, err)
		}
		return out, nil
	default:
		return nil, ErrNotConstructed
	}
}

func (n *Node) render(sb *strings.Builder) {
	switch n.Kind {
	case KindTerminal:
		if n.Terminal.Variable {
			sb.WriteString(n.Terminal.Name)
			return
		}
		fmt.Fprintf(sb, "%v", n.Value)
	case KindCall:
		sb.WriteString(n.Fn.Name)
		sb.WriteByte('(')
		for i, child := range n.Children {
			if i > 0 {
				sb.WriteString(", ")
			}
			child.render(sb)
		}
		sb.WriteByte(')')
	}
}

// Program wraps a root node with cached size and depth. Programs are
// immutable after construction; mutation always produces a new Program.
type Program struct {
	root  *Node
	size  int
	depth int
}

func New(root *Node) (*Program, error) {
	if root == nil {
		return nil, ErrEmptyProgram
	}
	return &Program{root: root, size: root.size(), depth: root.depth()}, nil
}

func (p *Program) Root() *Node { return p.root }

func (p *Program) RootType() lang.Type { return p.root.Type() }

func (p *Program) Size() int { return p.size }

func (p *Program) Depth() int { return p.depth }

// NodeAt resolves a path of child indices from the root. Shared access
// to the returned node is safe because nodes are never mutated.
func (p *Program) NodeAt(path []int) (*Node, error) {
	node := p.root
	for i, idx := range path {
		if idx < 0 || idx >= len(node.Children) {
			return nil, fmt.Errorf("%w: index %d out of range at depth %d", ErrInvalidPath, idx, i)
		}
		node = node.Children[idx]
	}
	return node, nil
}

// SubtreeAt returns the subtree rooted at path as a standalone Program.
func (p *Program) SubtreeAt(path []int) (*Program, error) {
	node, err := p.NodeAt(path)
	if err != nil {
		return nil, err
	}
	return New(node)
}

// ReplaceAt returns a new Program with the node at path replaced by the
// given subtree. Only the spine from root to the replacement is rebuilt;
// all untouched subtrees are shared with the receiver.
func (p *Program) ReplaceAt(path []int, replacement *Node) (*Program, error) {
	if replacement == nil {
		return nil, fmt.Errorf("%w: replacement is nil", ErrTypeMismatch)
	}
	target, err := p.NodeAt(path)
	if err != nil {
		return nil, err
	}
	if target.Type() != replacement.Type() {
		return nil, fmt.Errorf("%w: position produces %s, replacement produces %s", ErrTypeMismatch, target.Type(), replacement.Type())
	}

	root, err := replaceNode(p.root, path, replacement)
	if err != nil {
		return nil, err
	}
	return New(root)
}

func replaceNode(node *Node, path []int, replacement *Node) (*Node, error) {
	if len(path) == 0 {
		return replacement, nil
	}
	idx := path[0]
	if idx < 0 || idx >= len(node.Children) {
		return nil, fmt.Errorf("%w: index %d out of range", ErrInvalidPath, idx)
	}

	child, err := replaceNode(node.Children[idx], path[1:], replacement)
	if err != nil {
		return nil, err
	}
	children := make([]*Node, len(node.Children))
	copy(children, node.Children)
	children[idx] = child
	return NewCall(node.Fn, children...)
}

// Paths lists every node position in preorder, root first.
func (p *Program) Paths() [][]int {
	paths := make([][]int, 0, p.size)
	var walk func(node *Node, path []int)
	walk = func(node *Node, path []int) {
		paths = append(paths, append([]int(nil), path...))
		for i, child := range node.Children {
			walk(child, append(path, i))
		}
	}
	walk(p.root, nil)
	return paths
}

// TerminalPaths lists positions of terminal nodes in preorder.
func (p *Program) TerminalPaths() [][]int {
	return p.filterPaths(KindTerminal)
}

// CallPaths lists positions of call nodes in preorder.
func (p *Program) CallPaths() [][]int {
	return p.filterPaths(KindCall)
}

func (p *Program) filterPaths(kind NodeKind) [][]int {
	all := p.Paths()
	out := make([][]int, 0, len(all))
	for _, path := range all {
		node, err := p.NodeAt(path)
		if err != nil {
			continue
		}
		if node.Kind == kind {
			out = append(out, path)
		}
	}
	return out
}

// Eval reduces the program to a value under the given environment.
func (p *Program) Eval(env Env) (any, error) {
	return p.root.Eval(env)
}

// Render produces a canonical textual form, e.g. add(8, 9).
func (p *Program) Render() string {
	var sb strings.Builder
	p.root.render(&sb)
	return sb.String()
}

// Equal reports structural equality: same shape, same specs, and same
// terminal values rendered identically.
func (p *Program) Equal(other *Program) bool {
	if other == nil {
		return false
	}
	return p.Render() == other.Render()
}
