// Package socket connects operations. An Output fans variants out to every
// connected Input; an Input buffers them in a bounded FIFO queue until its
// owning operation consumes them.
//
// Each Input has at most one source. Emission order on an Output is the
// observed order on every connected Input.
package socket

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/c360/opflow/errors"
	"github.com/c360/opflow/metric"
	"github.com/c360/opflow/pkg/buffer"
	"github.com/c360/opflow/variant"
)

// Input is the receiving half of a connection.
type Input struct {
	owner    string
	name     string
	optional bool
	feedback bool
	queue    *buffer.Queue[variant.Variant]

	mu     sync.Mutex
	source *Output
}

// InputOption configures an Input.
type InputOption func(*inputConfig)

type inputConfig struct {
	capacity int
	policy   buffer.Policy
	optional bool
	feedback bool
	notify   func()
	registry *metric.MetricsRegistry
}

// WithCapacity sets the queue capacity. Defaults to buffer.DefaultCapacity.
func WithCapacity(n int) InputOption {
	return func(c *inputConfig) { c.capacity = n }
}

// WithPolicy sets the full-queue policy. Defaults to buffer.Block.
func WithPolicy(p buffer.Policy) InputOption {
	return func(c *inputConfig) { c.policy = p }
}

// Optional marks an input that may stay unconnected.
func Optional() InputOption {
	return func(c *inputConfig) { c.optional = true }
}

// Feedback marks an input fed by a loop that starts at the owner itself.
func Feedback() InputOption {
	return func(c *inputConfig) { c.feedback = true }
}

// WithNotify sets the function called after every delivery.
func WithNotify(fn func()) InputOption {
	return func(c *inputConfig) { c.notify = fn }
}

// WithMetrics exports the queue statistics under "<owner>.<name>".
func WithMetrics(registry *metric.MetricsRegistry) InputOption {
	return func(c *inputConfig) { c.registry = registry }
}

// NewInput creates an input socket owned by the named operation.
func NewInput(owner, name string, opts ...InputOption) (*Input, error) {
	cfg := inputConfig{capacity: buffer.DefaultCapacity, policy: buffer.Block}
	for _, opt := range opts {
		opt(&cfg)
	}

	queueOpts := []buffer.Option[variant.Variant]{
		buffer.WithPolicy[variant.Variant](cfg.policy),
		buffer.WithNotify[variant.Variant](cfg.notify),
	}
	if cfg.registry != nil {
		queueOpts = append(queueOpts, buffer.WithMetrics[variant.Variant](cfg.registry, owner+"."+name))
	}

	q, err := buffer.New(cfg.capacity, queueOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "Input", "NewInput", fmt.Sprintf("create queue for %s.%s", owner, name))
	}

	return &Input{
		owner:    owner,
		name:     name,
		optional: cfg.optional,
		feedback: cfg.feedback,
		queue:    q,
	}, nil
}

// Name returns the socket name.
func (in *Input) Name() string { return in.name }

// Owner returns the owning operation's name.
func (in *Input) Owner() string { return in.owner }

// Optional reports whether the input may stay unconnected.
func (in *Input) Optional() bool { return in.optional }

// Feedback reports whether the input closes a loop back into its owner.
func (in *Input) Feedback() bool { return in.feedback }

// Source returns the connected output, or nil.
func (in *Input) Source() *Output {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.source
}

// Connected reports whether the input has a source.
func (in *Input) Connected() bool {
	return in.Source() != nil
}

// Peek returns the queue head without removing it.
func (in *Input) Peek() (variant.Variant, bool) {
	return in.queue.Peek()
}

// Pop removes the queue head. It fails with ErrEmpty.
func (in *Input) Pop() (variant.Variant, error) {
	return in.queue.Pop()
}

// Len returns the number of queued variants.
func (in *Input) Len() int { return in.queue.Len() }

// Capacity returns the queue capacity.
func (in *Input) Capacity() int { return in.queue.Capacity() }

// Reset empties and reopens the queue for a new run.
func (in *Input) Reset() { in.queue.Reset() }

// Close empties the queue; later deliveries are discarded.
func (in *Input) Close() { in.queue.Close() }

// Closed reports whether Close was called since the last Reset.
func (in *Input) Closed() bool { return in.queue.Closed() }

// Stats returns the queue statistics.
func (in *Input) Stats() *buffer.Statistics { return in.queue.Stats() }

func (in *Input) String() string { return in.owner + "." + in.name }

func (in *Input) deliver(ctx context.Context, v variant.Variant, wait bool) error {
	if wait {
		return in.queue.PushWait(ctx, v)
	}
	return in.queue.Push(ctx, v)
}

// Output is the sending half of a connection.
type Output struct {
	owner string
	name  string

	mu    sync.RWMutex
	dests []*Input
}

// NewOutput creates an output socket owned by the named operation.
func NewOutput(owner, name string) *Output {
	return &Output{owner: owner, name: name}
}

// Name returns the socket name.
func (o *Output) Name() string { return o.name }

// Owner returns the owning operation's name.
func (o *Output) Owner() string { return o.owner }

func (o *Output) String() string { return o.owner + "." + o.name }

// Destinations returns the connected inputs in connection order.
func (o *Output) Destinations() []*Input {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*Input, len(o.dests))
	copy(out, o.dests)
	return out
}

// Connected reports whether the output has at least one destination.
func (o *Output) Connected() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.dests) > 0
}

// Connect registers in as a destination of out.
func Connect(out *Output, in *Input) error {
	if out == nil || in == nil {
		return errors.WrapInvalid(errors.ErrConnection, "socket", "Connect", "connect nil socket")
	}

	in.mu.Lock()
	if in.source != nil {
		src := in.source
		in.mu.Unlock()
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s already fed by %s", errors.ErrAlreadyConnected, in, src),
			"socket", "Connect", fmt.Sprintf("connect %s to %s", out, in))
	}
	in.source = out
	in.mu.Unlock()

	out.mu.Lock()
	out.dests = append(out.dests, in)
	out.mu.Unlock()
	return nil
}

// Disconnect removes in from out. It reports whether a connection existed.
func Disconnect(out *Output, in *Input) bool {
	in.mu.Lock()
	if in.source != out {
		in.mu.Unlock()
		return false
	}
	in.source = nil
	in.mu.Unlock()

	out.mu.Lock()
	defer out.mu.Unlock()
	kept := make([]*Input, 0, len(out.dests))
	for _, d := range out.dests {
		if d != in {
			kept = append(kept, d)
		}
	}
	out.dests = kept
	return true
}

// Emit delivers v to every destination in connection order. With the Block
// policy it waits for space; with Reject a full destination fails the call
// with ErrQueueFull after earlier destinations already received v.
// Destinations whose owner has stopped discard v.
func (o *Output) Emit(ctx context.Context, v variant.Variant) error {
	return o.send(ctx, v, false)
}

// Relay delivers a control tag. It waits for space whatever the
// destination policy is, so tags are never rejected.
func (o *Output) Relay(ctx context.Context, v variant.Variant) error {
	return o.send(ctx, v, true)
}

func (o *Output) send(ctx context.Context, v variant.Variant, wait bool) error {
	o.mu.RLock()
	dests := o.dests
	o.mu.RUnlock()

	for _, in := range dests {
		err := in.deliver(ctx, v, wait)
		if err == nil || stderrors.Is(err, errors.ErrQueueClosed) {
			continue
		}
		return errors.Wrap(err, "Output", "Emit", fmt.Sprintf("deliver %s to %s", v.Type(), in))
	}
	return nil
}
