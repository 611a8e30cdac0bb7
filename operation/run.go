package operation

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/c360/opflow/errors"
	"github.com/c360/opflow/flow"
	"github.com/c360/opflow/variant"
)

// Run is the worker loop. It returns when the operation has relayed Stop,
// failed, or ctx is cancelled, and always leaves the operation Stopped with
// its inputs closed. Faults are sent on faults when it is not nil.
//
// Cancelling ctx is a hard abort: no Stop is relayed.
func (o *Operation) Run(ctx context.Context, faults chan<- Fault) error {
	if !o.running.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Operation", "Run", o.name)
	}
	defer o.finish()

	if err := o.setState(Starting); err != nil {
		return err
	}
	controller, lines, err := o.prepare()
	if err != nil {
		_ = o.setState(Stopping)
		return err
	}
	if err := o.setState(Running); err != nil {
		return err
	}
	o.logger.Debug("Operation started", "inputs", len(o.inputs), "outputs", len(o.outputs))

	if o.IsSource() {
		o.runSource(ctx, faults)
	} else {
		o.runProcessor(ctx, controller, lines, faults)
	}
	return nil
}

// prepare resets per-run state and builds the flow controller over the
// connected inputs. The returned slice maps controller lines to input
// indices.
func (o *Operation) prepare() (flow.Controller, []int, error) {
	var lines []flow.Line
	var index []int
	for i, in := range o.inputs {
		if in.Closed() {
			in.Reset()
		}
		if !in.Connected() {
			if in.Optional() {
				continue
			}
			return nil, nil, errors.WrapInvalid(
				fmt.Errorf("%w: required input %s is not connected", errors.ErrConnection, in),
				"Operation", "Run", "prepare inputs")
		}
		lines = append(lines, flow.Line{Queue: in, Feedback: in.Feedback()})
		index = append(index, i)
	}

	if r, ok := o.Impl().(Resetter); ok {
		r.Reset()
	}
	if o.IsSource() {
		return nil, nil, nil
	}

	if o.independent {
		var pending func() bool
		if d, ok := o.processor.(Drainer); ok {
			pending = d.Pending
		}
		return flow.NewIndependent(lines, pending), index, nil
	}
	return flow.NewSync(lines), index, nil
}

// finish closes inputs, settles in Stopped and rearms the command channels
// for the next run.
func (o *Operation) finish() {
	for _, in := range o.inputs {
		in.Close()
	}
	if o.State() != Stopped {
		if o.State() != Stopping {
			_ = o.setState(Stopping)
		}
		_ = o.setState(Stopped)
	}

	o.cmdMu.Lock()
	o.stopOnce = new(sync.Once)
	o.stopCh = make(chan struct{})
	o.pauseReq.Store(false)
	for len(o.commands) > 0 {
		<-o.commands
	}
	o.running.Store(false)
	o.cmdMu.Unlock()

	o.logger.Debug("Operation stopped")
}

func (o *Operation) stopChan() <-chan struct{} {
	o.cmdMu.Lock()
	defer o.cmdMu.Unlock()
	return o.stopCh
}

func (o *Operation) runProcessor(ctx context.Context, controller flow.Controller, index []int, faults chan<- Fault) {
	stop := o.stopChan()
	emitter := &Emitter{op: o, ctx: ctx}

	for {
		d, err := controller.Next()
		if err != nil {
			line := -1
			var pe *errors.ProtocolError
			if stderrors.As(err, &pe) {
				pe.Operation = o.name
				if pe.Line >= 0 && pe.Line < len(index) {
					pe.Line = index[pe.Line]
				}
				line = pe.Line
			}
			o.fail(ctx, faults, line, err)
			return
		}

		switch d.Action {
		case flow.Wait:
			select {
			case <-o.wake:
			case <-stop:
				o.relayStop(ctx)
				return
			case <-ctx.Done():
				return
			}

		case flow.Process:
			group := o.group(d, index)
			if err := o.process(ctx, emitter, group); err != nil {
				o.fail(ctx, faults, o.faultLine(group, err), err)
				return
			}

		case flow.RelayStop:
			o.relayStop(ctx)
			return

		case flow.RelayPause:
			if o.relay(ctx, variant.Pause) != nil {
				return
			}
			_ = o.setState(Paused)

		case flow.RelayResume:
			if o.relay(ctx, variant.Resume) != nil {
				return
			}
			_ = o.setState(Running)

		case flow.RelaySyncStart, flow.RelaySyncEnd:
			if o.relay(ctx, d.Tag) != nil {
				return
			}

		case flow.BeginPause:
			_ = o.setState(Pausing)
		}
	}
}

// faultLine is the served line, or for a synchronized group the line a
// LineError names.
func (o *Operation) faultLine(g Group, err error) int {
	if g.Line >= 0 {
		return g.Line
	}
	var le *LineError
	if stderrors.As(err, &le) && le.Line >= 0 && le.Line < len(o.inputs) {
		return le.Line
	}
	return -1
}

// group maps a decision over connected lines onto the declared inputs.
func (o *Operation) group(d flow.Decision, index []int) Group {
	g := Group{Line: d.Line, Values: make([]variant.Variant, len(o.inputs))}
	for li, v := range d.Values {
		g.Values[index[li]] = v
	}
	if d.Line >= 0 {
		g.Line = index[d.Line]
	}
	return g
}

func (o *Operation) process(ctx context.Context, emitter *Emitter, g Group) error {
	start := time.Now()
	err := o.processor.Process(ctx, g, emitter)
	if o.metrics != nil {
		o.metrics.RecordProcessed(o.name, time.Since(start))
	}
	return err
}

func (o *Operation) runSource(ctx context.Context, faults chan<- Fault) {
	stop := o.stopChan()
	emitter := &Emitter{op: o, ctx: ctx}
	paused := false

	for {
		if paused {
			select {
			case tag := <-o.commands:
				if o.applyCommand(ctx, tag, &paused) != nil {
					return
				}
			case <-stop:
				o.relayStop(ctx)
				return
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case tag := <-o.commands:
			if o.applyCommand(ctx, tag, &paused) != nil {
				return
			}
			continue
		case <-stop:
			o.relayStop(ctx)
			return
		case <-ctx.Done():
			return
		default:
		}

		start := time.Now()
		more, err := o.producer.Produce(ctx, emitter)
		if o.metrics != nil {
			o.metrics.RecordProcessed(o.name, time.Since(start))
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			o.fail(ctx, faults, -1, err)
			return
		}
		if !more {
			o.logger.Debug("Producer exhausted")
			o.relayStop(ctx)
			return
		}
	}
}

// applyCommand relays a pipeline command and moves the source's state.
func (o *Operation) applyCommand(ctx context.Context, tag variant.TypeID, paused *bool) error {
	if err := o.relay(ctx, tag); err != nil {
		return err
	}
	switch tag {
	case variant.Pause:
		*paused = true
		return o.setState(Paused)
	case variant.Resume:
		*paused = false
		return o.setState(Running)
	}
	return nil
}

// relay sends tag on every output.
func (o *Operation) relay(ctx context.Context, tag variant.TypeID) error {
	v := variant.Tag(tag)
	for _, out := range o.outputs {
		if err := out.Relay(ctx, v); err != nil {
			o.logger.Warn("Control tag relay failed", "tag", tag.String(), "output", out.Name(), "error", err)
			return err
		}
	}
	if o.metrics != nil {
		o.metrics.RecordControlTag(o.name, tag.String())
	}
	o.logger.Debug("Relayed control tag", "tag", tag.String())
	return nil
}

func (o *Operation) relayStop(ctx context.Context) {
	if o.relay(ctx, variant.Stop) == nil {
		_ = o.setState(Stopping)
	}
}

// fail reports a fault and relays Stop so downstream operations terminate.
func (o *Operation) fail(ctx context.Context, faults chan<- Fault, line int, err error) {
	f := Fault{Operation: o.name, Line: line, Err: err}
	class := errors.Classify(err)
	o.logger.Error("Operation failed", "line", line, "class", class.String(), "error", err)
	if o.metrics != nil {
		o.metrics.RecordFault(o.name, class.String())
	}
	if faults != nil {
		select {
		case faults <- f:
		case <-ctx.Done():
		}
	}
	o.relayStop(ctx)
}
