package lang

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// TypeNumber is the value type used by the built-in arithmetic
// vocabulary. Caller-defined registries are free to declare their own
// types; nothing in the search core depends on this one.
const TypeNumber Type = "number"

var ErrNonNumeric = errors.New("value is not numeric")

// ArithmeticOptions shapes the built-in vocabulary. Zero values give
// integer constants in [0, 9] and no input variables.
type ArithmeticOptions struct {
	ConstMin      int
	ConstMax      int
	Variables     []string
	WithProtected bool
}

// NewArithmeticRegistry builds a finalized registry over a small
// arithmetic vocabulary: add/sub/mul (optionally protected div), an
// integer constant terminal, and one variable terminal per declared
// input name.
func NewArithmeticRegistry(opts ArithmeticOptions) (*Registry, error) {
	if opts.ConstMax == 0 && opts.ConstMin == 0 {
		opts.ConstMax = 9
	}
	if opts.ConstMin > opts.ConstMax {
		return nil, fmt.Errorf("constant range is inverted: [%d, %d]", opts.ConstMin, opts.ConstMax)
	}

	reg := NewRegistry()
	binary := []struct {
		name string
		fn   func(a, b float64) float64
	}{
		{"add", func(a, b float64) float64 { return a + b }},
		{"sub", func(a, b float64) float64 { return a - b }},
		{"mul", func(a, b float64) float64 { return a * b }},
	}
	for _, op := range binary {
		fn := op.fn
		err := reg.RegisterFunction(FunctionSpec{
			Name:    op.name,
			Params:  []Type{TypeNumber, TypeNumber},
			Returns: TypeNumber,
			Eval: func(args []any) (any, error) {
				a, err := AsNumber(args[0])
				if err != nil {
					return nil, err
				}
				b, err := AsNumber(args[1])
				if err != nil {
					return nil, err
				}
				return fn(a, b), nil
			},
		})
		if err != nil {
			return nil, err
		}
	}

	if opts.WithProtected {
		err := reg.RegisterFunction(FunctionSpec{
			Name:    "div",
			Params:  []Type{TypeNumber, TypeNumber},
			Returns: TypeNumber,
			Eval: func(args []any) (any, error) {
				a, err := AsNumber(args[0])
				if err != nil {
					return nil, err
				}
				b, err := AsNumber(args[1])
				if err != nil {
					return nil, err
				}
				// Protected division keeps the vocabulary total.
				if math.Abs(b) <= 1e-9 {
					return a, nil
				}
				return a / b, nil
			},
		})
		if err != nil {
			return nil, err
		}
	}

	span := opts.ConstMax - opts.ConstMin + 1
	constMin := opts.ConstMin
	err := reg.RegisterTerminal(TerminalSpec{
		Name: "const",
		Type: TypeNumber,
		Generate: func(rng *rand.Rand) any {
			return float64(constMin + rng.Intn(span))
		},
	})
	if err != nil {
		return nil, err
	}

	for _, name := range opts.Variables {
		if err := reg.RegisterTerminal(TerminalSpec{
			Name:     name,
			Type:     TypeNumber,
			Variable: true,
		}); err != nil {
			return nil, err
		}
	}

	if err := reg.Finalize(); err != nil {
		return nil, err
	}
	return reg, nil
}

// AsNumber coerces a terminal or evaluation value to float64.
func AsNumber(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrNonNumeric, v)
	}
}
