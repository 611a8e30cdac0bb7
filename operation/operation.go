// Package operation runs one node of a pipeline: a state machine around a
// processing function, driven by a flow controller on a goroutine of its own.
//
// An operation with inputs wraps a Processor. An operation without inputs is
// a source and wraps a Producer; sources take Pause, Resume and Stop commands
// from the pipeline and turn them into control tags. Every other operation
// learns about lifecycle changes only from the tags arriving on its inputs,
// and relays them on all of its outputs before changing state.
package operation

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/c360/opflow/errors"
	"github.com/c360/opflow/metric"
	"github.com/c360/opflow/pkg/buffer"
	"github.com/c360/opflow/socket"
	"github.com/c360/opflow/variant"
)

// Operation is a node of a pipeline.
type Operation struct {
	name        string
	inputs      []*socket.Input
	outputs     []*socket.Output
	processor   Processor
	producer    Producer
	independent bool

	state     atomic.Int32
	running   atomic.Bool
	wake      chan struct{}
	commands  chan variant.TypeID
	stopOnce  *sync.Once
	stopCh    chan struct{}
	pauseReq  atomic.Bool
	cmdMu     sync.Mutex
	logger    *slog.Logger
	metrics   *metric.Metrics
	listeners []StateListener
}

// New creates an operation. impl must be a Processor when inputs are
// declared and a Producer otherwise.
func New(name string, impl any, opts ...Option) (*Operation, error) {
	if name == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Operation", "New", "operation name is empty")
	}

	cfg := config{
		capacity: buffer.DefaultCapacity,
		policy:   buffer.Block,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	op := &Operation{
		name:        name,
		independent: cfg.independent,
		wake:        make(chan struct{}, 1),
		commands:    make(chan variant.TypeID, 8),
		stopOnce:    new(sync.Once),
		stopCh:      make(chan struct{}),
		logger:      cfg.logger.With("component", "operation", "operation", name),
		listeners:   cfg.listeners,
	}
	if cfg.registry != nil {
		op.metrics = cfg.registry.CoreMetrics()
	}

	seen := make(map[string]bool)
	for _, spec := range cfg.inputs {
		if seen[spec.name] {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: input %q declared twice", errors.ErrDuplicateName, spec.name),
				"Operation", "New", "declare inputs")
		}
		seen[spec.name] = true

		sockOpts := []socket.InputOption{
			socket.WithCapacity(cfg.capacity),
			socket.WithPolicy(cfg.policy),
			socket.WithNotify(op.signal),
		}
		if spec.optional {
			sockOpts = append(sockOpts, socket.Optional())
		}
		if spec.feedback {
			sockOpts = append(sockOpts, socket.Feedback())
		}
		if cfg.registry != nil {
			sockOpts = append(sockOpts, socket.WithMetrics(cfg.registry))
		}
		in, err := socket.NewInput(name, spec.name, sockOpts...)
		if err != nil {
			return nil, err
		}
		op.inputs = append(op.inputs, in)
	}

	seen = make(map[string]bool)
	for _, outName := range cfg.outputs {
		if seen[outName] {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: output %q declared twice", errors.ErrDuplicateName, outName),
				"Operation", "New", "declare outputs")
		}
		seen[outName] = true
		op.outputs = append(op.outputs, socket.NewOutput(name, outName))
	}

	if len(op.inputs) > 0 {
		p, ok := impl.(Processor)
		if !ok {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: %T does not implement Processor", errors.ErrInvalidConfig, impl),
				"Operation", "New", "bind processor")
		}
		op.processor = p
	} else {
		p, ok := impl.(Producer)
		if !ok {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: source %T does not implement Producer", errors.ErrInvalidConfig, impl),
				"Operation", "New", "bind producer")
		}
		op.producer = p
	}

	return op, nil
}

// Name returns the operation name.
func (o *Operation) Name() string { return o.name }

// State returns the current state.
func (o *Operation) State() State { return State(o.state.Load()) }

// IsSource reports whether the operation has no inputs.
func (o *Operation) IsSource() bool { return len(o.inputs) == 0 }

// Inputs returns the input sockets in declaration order.
func (o *Operation) Inputs() []*socket.Input { return o.inputs }

// Outputs returns the output sockets in declaration order.
func (o *Operation) Outputs() []*socket.Output { return o.outputs }

// Input returns the named input socket, or nil.
func (o *Operation) Input(name string) *socket.Input {
	for _, in := range o.inputs {
		if in.Name() == name {
			return in
		}
	}
	return nil
}

// Output returns the named output socket, or nil.
func (o *Operation) Output(name string) *socket.Output {
	for _, out := range o.outputs {
		if out.Name() == name {
			return out
		}
	}
	return nil
}

// Impl returns the Processor or Producer the operation was created with.
func (o *Operation) Impl() any {
	if o.processor != nil {
		return o.processor
	}
	return o.producer
}

// OnStateChange adds a state change observer. It must not be called while
// the operation runs.
func (o *Operation) OnStateChange(fn StateListener) {
	if fn != nil {
		o.listeners = append(o.listeners, fn)
	}
}

// ResetInputs empties and reopens every input queue. Run reopens inputs
// closed by a previous run on its own; a pipeline calls ResetInputs on all
// operations before starting any, so that nothing an upstream operation
// emits early is discarded.
func (o *Operation) ResetInputs() {
	for _, in := range o.inputs {
		in.Reset()
	}
}

// Running reports whether Run is in progress.
func (o *Operation) Running() bool { return o.running.Load() }

// Pause asks a source to emit Pause.
func (o *Operation) Pause() error {
	return o.command(variant.Pause)
}

// Resume asks a paused source to emit Resume.
func (o *Operation) Resume() error {
	return o.command(variant.Resume)
}

// Stop asks the operation to relay Stop and terminate. It is idempotent and
// may be called in any state; it does nothing unless Run is in progress.
func (o *Operation) Stop() {
	o.cmdMu.Lock()
	defer o.cmdMu.Unlock()
	if o.running.Load() {
		o.stopOnce.Do(func() { close(o.stopCh) })
	}
}

func (o *Operation) command(tag variant.TypeID) error {
	if !o.IsSource() {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s is not a source", errors.ErrInvalidState, o.name),
			"Operation", "command", fmt.Sprintf("issue %s", tag))
	}
	if !o.running.Load() {
		return errors.WrapInvalid(errors.ErrNotStarted, "Operation", "command", fmt.Sprintf("issue %s", tag))
	}

	o.cmdMu.Lock()
	defer o.cmdMu.Unlock()

	wantPaused := tag == variant.Pause
	if o.pauseReq.Load() == wantPaused {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s while %s", errors.ErrInvalidState, tag, o.State()),
			"Operation", "command", fmt.Sprintf("issue %s", tag))
	}

	select {
	case o.commands <- tag:
		o.pauseReq.Store(wantPaused)
		return nil
	default:
		return errors.WrapTransient(errors.ErrQueueFull, "Operation", "command", fmt.Sprintf("issue %s", tag))
	}
}

// signal wakes the worker. It never blocks.
func (o *Operation) signal() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *Operation) setState(to State) error {
	for {
		from := State(o.state.Load())
		if !from.CanTransition(to) {
			return errors.WrapInvalid(
				fmt.Errorf("%w: %s -> %s", errors.ErrInvalidState, from, to),
				"Operation", "setState", o.name)
		}
		if o.state.CompareAndSwap(int32(from), int32(to)) {
			o.logger.Debug("State changed", "from", from.String(), "to", to.String())
			if o.metrics != nil {
				o.metrics.RecordOperationState(o.name, int(to))
			}
			for _, l := range o.listeners {
				l(o.name, from, to)
			}
			return nil
		}
	}
}
