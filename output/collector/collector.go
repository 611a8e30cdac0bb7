// Package collector provides a sink operation that records every variant it
// receives, for tests and for the command line demo.
package collector

import (
	"context"
	"sync"

	"github.com/c360/opflow/operation"
	"github.com/c360/opflow/variant"
)

// Input is the name of the collector's only input.
const Input = "in"

// Collector records variants and the state changes of its operation.
type Collector struct {
	mu          sync.Mutex
	values      []variant.Variant
	transitions []operation.State
	onValue     func(variant.Variant)
}

// Option configures a Collector.
type Option func(*Collector)

// WithCallback calls fn for every received variant.
func WithCallback(fn func(variant.Variant)) Option {
	return func(c *Collector) { c.onValue = fn }
}

// New creates a sink operation with a single input named Input. The
// returned Collector holds what the operation received.
func New(name string, opts []Option, opOpts ...operation.Option) (*operation.Operation, *Collector, error) {
	c := &Collector{}
	for _, opt := range opts {
		opt(c)
	}
	opOpts = append([]operation.Option{
		operation.WithInput(Input),
		operation.WithStateListener(c.observe),
	}, opOpts...)

	op, err := operation.New(name, c, opOpts...)
	if err != nil {
		return nil, nil, err
	}
	return op, c, nil
}

// Process records the received variant.
func (c *Collector) Process(_ context.Context, in operation.Group, _ *operation.Emitter) error {
	v := in.Value(0)
	c.mu.Lock()
	c.values = append(c.values, v)
	fn := c.onValue
	c.mu.Unlock()
	if fn != nil {
		fn(v)
	}
	return nil
}

// Reset drops what the previous run recorded.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = nil
	c.transitions = nil
}

func (c *Collector) observe(_ string, _, to operation.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitions = append(c.transitions, to)
}

// Values returns a copy of the received variants.
func (c *Collector) Values() []variant.Variant {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]variant.Variant, len(c.values))
	copy(out, c.values)
	return out
}

// Len returns the number of received variants.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}

// Transitions returns the states the operation went through since the last
// reset, Starting excluded.
func (c *Collector) Transitions() []operation.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]operation.State, len(c.transitions))
	copy(out, c.transitions)
	return out
}

// Ints reads every received variant as int64. Values of other kinds are
// skipped.
func (c *Collector) Ints() []int64 {
	var out []int64
	for _, v := range c.Values() {
		if x, err := variant.ValueAs[int64](v); err == nil {
			out = append(out, x)
		}
	}
	return out
}
