// Package mapper provides function operations: one variant out for every
// synchronized group in.
package mapper

import (
	"context"

	"github.com/c360/opflow/errors"
	"github.com/c360/opflow/operation"
	"github.com/c360/opflow/variant"
)

// Output is the name of the mapper's only output.
const Output = "out"

// Input is the input name used by New.
const Input = "in"

// Func computes the output for one group. Returning the empty variant drops
// the group.
type Func func(values []variant.Variant) (variant.Variant, error)

type mapper struct {
	name string
	fn   Func
}

// New creates a one-input, one-output operation applying fn.
func New(name string, fn func(variant.Variant) (variant.Variant, error), opts ...operation.Option) (*operation.Operation, error) {
	if fn == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Mapper", "New", "nil function")
	}
	return NewJoin(name, []string{Input}, func(values []variant.Variant) (variant.Variant, error) {
		return fn(values[0])
	}, opts...)
}

// NewJoin creates an operation with the named inputs, served in
// synchronized groups, and one output.
func NewJoin(name string, inputs []string, fn Func, opts ...operation.Option) (*operation.Operation, error) {
	if fn == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Mapper", "NewJoin", "nil function")
	}
	if len(inputs) == 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Mapper", "NewJoin", "no inputs")
	}

	base := make([]operation.Option, 0, len(inputs)+1)
	for _, in := range inputs {
		base = append(base, operation.WithInput(in))
	}
	base = append(base, operation.WithOutput(Output))
	return operation.New(name, &mapper{name: name, fn: fn}, append(base, opts...)...)
}

func (m *mapper) Process(_ context.Context, in operation.Group, out *operation.Emitter) error {
	v, err := m.fn(in.Values)
	if err != nil {
		return errors.Wrap(err, "Mapper", "Process", "apply "+m.name)
	}
	if v.IsEmpty() {
		return nil
	}
	return out.Emit(0, v)
}

// Int64 lifts an int64 function to a Func over one input. Values of other
// kinds fail with ErrTypeMismatch.
func Int64(fn func(int64) int64) func(variant.Variant) (variant.Variant, error) {
	return func(v variant.Variant) (variant.Variant, error) {
		x, err := variant.ValueAs[int64](v)
		if err != nil {
			return variant.Empty(), err
		}
		return variant.New(fn(x)), nil
	}
}
