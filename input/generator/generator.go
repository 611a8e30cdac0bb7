// Package generator provides a source operation that emits a fixed sequence
// of variants and then Stop.
package generator

import (
	"context"
	"time"

	"github.com/c360/opflow/errors"
	"github.com/c360/opflow/operation"
	"github.com/c360/opflow/variant"
)

// Output is the name of the generator's only output.
const Output = "out"

// Forever makes the generator cycle through its values until stopped.
const Forever = -1

// Config configures a Generator.
type Config struct {
	// Values is the sequence to emit. Control tags are refused.
	Values []variant.Variant

	// Passes is the number of times the sequence is emitted. Zero means
	// once; Forever never ends.
	Passes int

	// Interval is the pause between two emissions.
	Interval time.Duration
}

// Generator is the Producer behind a generator operation.
type Generator struct {
	cfg   Config
	index int
	pass  int
}

// NewGenerator creates a Generator. It fails when Values holds a control tag
// or an empty variant.
func NewGenerator(cfg Config) (*Generator, error) {
	for _, v := range cfg.Values {
		if v.IsControl() || v.IsEmpty() {
			return nil, errors.WrapInvalid(errors.ErrInvalidData, "Generator", "NewGenerator",
				"sequence holds "+v.String())
		}
	}
	if cfg.Passes == 0 {
		cfg.Passes = 1
	}
	return &Generator{cfg: cfg}, nil
}

// New creates a source operation with a single output named Output.
func New(name string, cfg Config, opts ...operation.Option) (*operation.Operation, error) {
	g, err := NewGenerator(cfg)
	if err != nil {
		return nil, err
	}
	return operation.New(name, g, append([]operation.Option{operation.WithOutput(Output)}, opts...)...)
}

// Reset rewinds the sequence.
func (g *Generator) Reset() {
	g.index = 0
	g.pass = 0
}

// Produce emits the next value.
func (g *Generator) Produce(ctx context.Context, out *operation.Emitter) (bool, error) {
	if len(g.cfg.Values) == 0 || g.exhausted() {
		return false, nil
	}

	if g.cfg.Interval > 0 && (g.index > 0 || g.pass > 0) {
		timer := time.NewTimer(g.cfg.Interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		}
	}

	if err := out.Emit(0, g.cfg.Values[g.index]); err != nil {
		return false, err
	}

	g.index++
	if g.index == len(g.cfg.Values) {
		g.index = 0
		g.pass++
	}
	return !g.exhausted(), nil
}

func (g *Generator) exhausted() bool {
	return g.cfg.Passes != Forever && g.pass >= g.cfg.Passes
}
