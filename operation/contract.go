package operation

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/c360/opflow/errors"
	"github.com/c360/opflow/variant"
)

// Group is the input handed to one processing step.
type Group struct {
	// Line is the served input for independent operations, -1 when Values
	// holds one variant from every line.
	Line int

	// Values is indexed by input line.
	Values []variant.Variant
}

// Value returns the variant of line i, or the empty variant.
func (g Group) Value(i int) variant.Variant {
	if i < 0 || i >= len(g.Values) {
		return variant.Empty()
	}
	return g.Values[i]
}

// Processor is the processing function of an operation with inputs.
// It never sees control tags.
type Processor interface {
	Process(ctx context.Context, in Group, out *Emitter) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, in Group, out *Emitter) error

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, in Group, out *Emitter) error {
	return f(ctx, in, out)
}

// Producer drives a source operation. Each call emits zero or more variants
// and reports whether more will follow. Produce should return promptly so
// lifecycle commands are served.
type Producer interface {
	Produce(ctx context.Context, out *Emitter) (more bool, err error)
}

// ProducerFunc adapts a function to Producer.
type ProducerFunc func(ctx context.Context, out *Emitter) (bool, error)

// Produce calls f.
func (f ProducerFunc) Produce(ctx context.Context, out *Emitter) (bool, error) {
	return f(ctx, out)
}

// Resetter is implemented by processors with per-run state. Reset is called
// while the operation is Starting.
type Resetter interface {
	Reset()
}

// Drainer is implemented by processors that wait for answers on feedback
// inputs. Stop is held back while Pending reports true.
type Drainer interface {
	Pending() bool
}

// Fault reports a failed operation.
type Fault struct {
	Operation string

	// Line is the declared index of the input that failed. It is -1 when a
	// synchronized group failed as a whole and the error names no line.
	Line int

	Err error
}

func (f Fault) Error() string {
	return fmt.Sprintf("operation %s line %d: %v", f.Operation, f.Line, f.Err)
}

// Unwrap returns the underlying error.
func (f Fault) Unwrap() error {
	return f.Err
}

// LineError attributes a processing error to one input of a synchronized
// group. Processors return it to name the offending line in the Fault.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

// Unwrap returns the underlying error.
func (e *LineError) Unwrap() error {
	return e.Err
}

// Protocol reports whether the fault is a control-tag protocol violation.
func (f Fault) Protocol() bool {
	return stderrors.Is(f.Err, errors.ErrProtocolViolation)
}
