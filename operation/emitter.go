package operation

import (
	"context"
	"fmt"

	"github.com/c360/opflow/errors"
	"github.com/c360/opflow/variant"
)

// Emitter sends data variants on an operation's outputs. It is only valid
// during the Process or Produce call it was passed to.
type Emitter struct {
	op  *Operation
	ctx context.Context
}

// Emit sends v on output port.
func (e *Emitter) Emit(port int, v variant.Variant) error {
	if port < 0 || port >= len(e.op.outputs) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s has no output %d", errors.ErrConnection, e.op.name, port),
			"Emitter", "Emit", "select output")
	}
	if v.IsControl() {
		return errors.WrapInvalid(errors.ErrControlTag, "Emitter", "Emit", fmt.Sprintf("emit %s", v))
	}
	if v.IsEmpty() {
		return errors.WrapInvalid(errors.ErrInvalidData, "Emitter", "Emit", "emit empty variant")
	}

	out := e.op.outputs[port]
	if err := out.Emit(e.ctx, v); err != nil {
		return err
	}
	if e.op.metrics != nil {
		e.op.metrics.RecordEmitted(e.op.name, out.Name())
	}
	return nil
}

// EmitTo sends v on the named output.
func (e *Emitter) EmitTo(name string, v variant.Variant) error {
	for i, out := range e.op.outputs {
		if out.Name() == name {
			return e.Emit(i, v)
		}
	}
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s has no output %q", errors.ErrConnection, e.op.name, name),
		"Emitter", "EmitTo", "select output")
}
