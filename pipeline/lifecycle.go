package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/c360/opflow/errors"
	"github.com/c360/opflow/operation"
)

// Start validates the graph and runs every operation on its own goroutine.
// It returns once every operation has left Starting. Cancelling ctx aborts
// all operations without relaying Stop.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Pipeline", "Start", "start pipeline")
	}
	if err := p.validate(); err != nil {
		p.mu.Unlock()
		return err
	}
	ops := make([]*operation.Operation, len(p.ops))
	copy(ops, p.ops)

	p.running = true
	p.faults = nil
	p.fatal = nil
	p.result = nil
	p.started = make(chan string, len(ops))
	p.ready = make(chan struct{})
	p.done = make(chan struct{})
	started, ready, done := p.started, p.ready, p.done
	p.mu.Unlock()

	for _, op := range ops {
		op.ResetInputs()
	}

	faults := make(chan operation.Fault, len(ops))
	g, gctx := errgroup.WithContext(ctx)
	for _, op := range ops {
		g.Go(func() error {
			if err := op.Run(gctx, faults); err != nil {
				return fmt.Errorf("operation %s: %w", op.Name(), err)
			}
			return nil
		})
	}

	collected := make(chan struct{})
	go p.collect(faults, collected)
	go p.supervise(g, faults, collected, done)

	if p.metrics != nil {
		p.metrics.PipelinesRunning.Inc()
	}
	p.logger.Info("Pipeline started", "operations", len(ops))

	defer close(ready)
	for range ops {
		select {
		case <-started:
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// observe is registered on every operation.
func (p *Pipeline) observe(name string, from, to operation.State) {
	p.logger.Debug("Operation state changed", "operation", name, "from", from.String(), "to", to.String())
	if from != operation.Starting {
		return
	}
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	select {
	case started <- name:
	default:
	}
}

// collect records faults until the channel closes and halts the pipeline on
// fatal ones.
func (p *Pipeline) collect(faults <-chan operation.Fault, collected chan<- struct{}) {
	defer close(collected)
	for f := range faults {
		halt := p.haltOnFault || f.Protocol()

		p.mu.Lock()
		p.faults = append(p.faults, f)
		if halt && p.fatal == nil {
			p.fatal = f
		}
		p.mu.Unlock()

		p.logger.Error("Operation fault", "operation", f.Operation, "line", f.Line,
			"protocol", f.Protocol(), "halt", halt, "error", f.Err)
		if halt {
			p.stopSources()
		}
	}
}

func (p *Pipeline) supervise(g *errgroup.Group, faults chan operation.Fault, collected <-chan struct{}, done chan<- struct{}) {
	err := g.Wait()
	close(faults)
	<-collected

	p.mu.Lock()
	if err == nil && p.fatal != nil {
		err = p.fatal
	}
	p.result = err
	p.running = false
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.PipelinesRunning.Dec()
	}
	if err != nil {
		p.logger.Warn("Pipeline stopped with error", "error", err)
	} else {
		p.logger.Info("Pipeline stopped")
	}
	close(done)
}

// waitReady returns the source operations once Start has returned, or false
// when the pipeline is not running.
func (p *Pipeline) waitReady() ([]*operation.Operation, bool) {
	p.mu.Lock()
	running, ready, done := p.running, p.ready, p.done
	var sources []*operation.Operation
	for _, op := range p.ops {
		if op.IsSource() {
			sources = append(sources, op)
		}
	}
	p.mu.Unlock()

	if !running {
		return nil, false
	}
	select {
	case <-ready:
	case <-done:
		return nil, false
	}
	return sources, true
}

func (p *Pipeline) stopSources() {
	p.mu.Lock()
	for _, op := range p.ops {
		if op.IsSource() {
			op.Stop()
		}
	}
	p.mu.Unlock()
}

// Stop asks every source to emit Stop. The tag reaches every operation and
// each one stops after relaying it. Stop is idempotent and always succeeds;
// use Wait to block until the pipeline has stopped.
func (p *Pipeline) Stop() {
	sources, ok := p.waitReady()
	if !ok {
		return
	}
	p.logger.Info("Stopping pipeline")
	for _, op := range sources {
		op.Stop()
	}
}

// Pause asks every running source to emit Pause.
func (p *Pipeline) Pause() error {
	return p.command("Pause", (*operation.Operation).Pause)
}

// Resume asks every running source to emit Resume.
func (p *Pipeline) Resume() error {
	return p.command("Resume", (*operation.Operation).Resume)
}

func (p *Pipeline) command(method string, issue func(*operation.Operation) error) error {
	sources, ok := p.waitReady()
	if !ok {
		return errors.WrapInvalid(errors.ErrNotStarted, "Pipeline", method, "issue command")
	}

	var errs []error
	for _, op := range sources {
		if !op.Running() {
			continue
		}
		if err := issue(op); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return stderrors.Join(errs...)
	}
	p.logger.Info("Pipeline command issued", "command", method)
	return nil
}

// Wait blocks until every operation has stopped. It returns the first fatal
// fault, or the error of an operation that could not start.
func (p *Pipeline) Wait() error {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return errors.WrapInvalid(errors.ErrNotStarted, "Pipeline", "Wait", "wait for pipeline")
	}
	<-done

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result
}

// Running reports whether the pipeline has operations running.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// States returns the current state of every operation.
func (p *Pipeline) States() map[string]operation.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	states := make(map[string]operation.State, len(p.ops))
	for _, op := range p.ops {
		states[op.Name()] = op.State()
	}
	return states
}

// Faults returns the faults reported during the last run.
func (p *Pipeline) Faults() []operation.Fault {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]operation.Fault, len(p.faults))
	copy(out, p.faults)
	return out
}
