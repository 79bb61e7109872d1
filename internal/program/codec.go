package program

import (
	"fmt"

	"progsearch/internal/lang"
	"progsearch/internal/model"
)

const (
	kindTerminal = "terminal"
	kindCall     = "call"
)

// ToRecord flattens a program into its persistence record. The record
// references specs by name; decoding rebinds them against a registry.
func ToRecord(id string, p *Program) model.ProgramRecord {
	return model.ProgramRecord{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: model.CurrentSchemaVersion,
			CodecVersion:  model.CurrentCodecVersion,
		},
		ID:         id,
		ReturnType: string(p.RootType()),
		Size:       p.Size(),
		Depth:      p.Depth(),
		Rendered:   p.Render(),
		Root:       nodeToRecord(p.Root()),
	}
}

func nodeToRecord(n *Node) model.NodeRecord {
	switch n.Kind {
	case KindCall:
		children := make([]model.NodeRecord, len(n.Children))
		for i, child := range n.Children {
			children[i] = nodeToRecord(child)
		}
		return model.NodeRecord{Kind: kindCall, Function: n.Fn.Name, Children: children}
	default:
		return model.NodeRecord{Kind: kindTerminal, Terminal: n.Terminal.Name, Value: n.Value}
	}
}

// FromRecord rebuilds a program from its record, resolving every spec
// reference against the registry. The rebuilt tree passes the same
// eager type validation as freshly constructed programs, so a record
// that drifted from the registry fails instead of producing an
// ill-typed tree.
func FromRecord(reg *lang.Registry, rec model.ProgramRecord) (*Program, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry is required")
	}
	root, err := nodeFromRecord(reg, rec.Root)
	if err != nil {
		return nil, err
	}
	p, err := New(root)
	if err != nil {
		return nil, err
	}
	if rec.ReturnType != "" && p.RootType() != lang.Type(rec.ReturnType) {
		return nil, fmt.Errorf("%w: record declares %s, tree produces %s", ErrTypeMismatch, rec.ReturnType, p.RootType())
	}
	return p, nil
}

func nodeFromRecord(reg *lang.Registry, rec model.NodeRecord) (*Node, error) {
	switch rec.Kind {
	case kindTerminal:
		spec, ok := reg.Terminal(rec.Terminal)
		if !ok {
			return nil, fmt.Errorf("%w: terminal %s", ErrUnknownSpec, rec.Terminal)
		}
		return NewTerminal(spec, rec.Value), nil
	case kindCall:
		spec, ok := reg.Function(rec.Function)
		if !ok {
			return nil, fmt.Errorf("%w: function %s", ErrUnknownSpec, rec.Function)
		}
		children := make([]*Node, len(rec.Children))
		for i, childRec := range rec.Children {
			child, err := nodeFromRecord(reg, childRec)
			if err != nil {
				return nil, err
			}
			children[i] = child
		}
		return NewCall(spec, children...)
	default:
		return nil, fmt.Errorf("%w: node kind %q", ErrUnknownSpec, rec.Kind)
	}
}
