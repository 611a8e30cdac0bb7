// Package pipeline assembles operations into a graph and drives its
// lifecycle. Lifecycle commands go to the source operations only; every other
// operation follows the control tags they emit.
package pipeline

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/c360/opflow/errors"
	"github.com/c360/opflow/metric"
	"github.com/c360/opflow/operation"
	"github.com/c360/opflow/socket"
)

// Pipeline is a graph of operations.
type Pipeline struct {
	id          string
	logger      *slog.Logger
	metrics     *metric.Metrics
	haltOnFault bool

	mu      sync.Mutex
	ops     []*operation.Operation
	byName  map[string]*operation.Operation
	running bool
	started chan string
	ready   chan struct{}
	done    chan struct{}
	result  error
	faults  []operation.Fault
	fatal   error
}

// New creates an empty pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		id:          uuid.New().String(),
		logger:      slog.Default(),
		haltOnFault: true,
		byName:      make(map[string]*operation.Operation),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "pipeline", "pipeline", p.id)
	return p
}

// ID returns the pipeline identifier used in logs.
func (p *Pipeline) ID() string { return p.id }

// Add adds operations. Names must be unique within the pipeline.
func (p *Pipeline) Add(ops ...*operation.Operation) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Pipeline", "Add", "add operation")
	}
	for _, op := range ops {
		if op == nil {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Pipeline", "Add", "add nil operation")
		}
		if _, exists := p.byName[op.Name()]; exists {
			return errors.WrapInvalid(
				fmt.Errorf("%w: %q", errors.ErrDuplicateName, op.Name()),
				"Pipeline", "Add", "add operation")
		}
		p.byName[op.Name()] = op
		p.ops = append(p.ops, op)
		op.OnStateChange(p.observe)
	}
	return nil
}

// Operation returns the named operation, or nil.
func (p *Pipeline) Operation(name string) *operation.Operation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.byName[name]
}

// Operations returns the operations in the order they were added.
func (p *Pipeline) Operations() []*operation.Operation {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*operation.Operation, len(p.ops))
	copy(out, p.ops)
	return out
}

// Connect links output "op.port" to input "op.port".
func (p *Pipeline) Connect(from, to string) error {
	out, in, err := p.resolve(from, to)
	if err != nil {
		return err
	}
	return socket.Connect(out, in)
}

// Disconnect removes the link between output from and input to.
func (p *Pipeline) Disconnect(from, to string) error {
	out, in, err := p.resolve(from, to)
	if err != nil {
		return err
	}
	if in.Source() != out {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s is not fed by %s", errors.ErrConnection, to, from),
			"Pipeline", "Disconnect", "remove connection")
	}
	socket.Disconnect(out, in)
	return nil
}

func (p *Pipeline) resolve(from, to string) (*socket.Output, *socket.Input, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil, nil, errors.WrapInvalid(errors.ErrAlreadyStarted, "Pipeline", "Connect", "change connections")
	}

	srcOp, srcPort, err := p.lookup(from)
	if err != nil {
		return nil, nil, err
	}
	dstOp, dstPort, err := p.lookup(to)
	if err != nil {
		return nil, nil, err
	}

	out := srcOp.Output(srcPort)
	if out == nil {
		return nil, nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s has no output %q", errors.ErrConnection, srcOp.Name(), srcPort),
			"Pipeline", "Connect", "resolve output")
	}
	in := dstOp.Input(dstPort)
	if in == nil {
		return nil, nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s has no input %q", errors.ErrConnection, dstOp.Name(), dstPort),
			"Pipeline", "Connect", "resolve input")
	}
	return out, in, nil
}

func (p *Pipeline) lookup(ref string) (*operation.Operation, string, error) {
	name, port, ok := strings.Cut(ref, ".")
	if !ok || name == "" || port == "" {
		return nil, "", errors.WrapInvalid(
			fmt.Errorf("%w: %q is not of the form operation.port", errors.ErrConnection, ref),
			"Pipeline", "Connect", "parse endpoint")
	}
	op, exists := p.byName[name]
	if !exists {
		return nil, "", errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnknownOperation, name),
			"Pipeline", "Connect", "resolve endpoint")
	}
	return op, port, nil
}

// Validate checks that the graph can run: every required input connected,
// every connection internal to the pipeline, and at least one source.
func (p *Pipeline) Validate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.validate()
}

func (p *Pipeline) validate() error {
	if len(p.ops) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Pipeline", "Validate", "pipeline has no operations")
	}

	var issues []error
	sources := 0
	for _, op := range p.ops {
		if op.IsSource() {
			sources++
		}
		for _, in := range op.Inputs() {
			src := in.Source()
			if src == nil {
				if !in.Optional() {
					issues = append(issues, fmt.Errorf("%w: required input %s is not connected", errors.ErrConnection, in))
				}
				continue
			}
			owner, exists := p.byName[src.Owner()]
			if !exists || owner.Output(src.Name()) != src {
				issues = append(issues, fmt.Errorf("%w: %s is fed by %s from outside the pipeline",
					errors.ErrUnknownOperation, in, src))
			}
		}
	}
	if sources == 0 {
		issues = append(issues, fmt.Errorf("%w: pipeline has no source operation", errors.ErrInvalidConfig))
	}

	if len(issues) > 0 {
		return errors.WrapInvalid(stderrors.Join(issues...), "Pipeline", "Validate", "validate graph")
	}
	return nil
}
