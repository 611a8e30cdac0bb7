// Package flow decides, for one operation, what to do next with the heads of
// its input queues: process a synchronized group, relay a control tag, or
// wait for more input.
//
// Two controllers are provided. NewSync pairs one variant from every line and
// realigns lines with SyncStart/SyncEnd brackets. NewIndependent serves lines
// one at a time for operations whose inputs are not positionally related.
//
// Controllers are not safe for concurrent use; each belongs to the worker
// goroutine of a single operation.
package flow

import (
	"fmt"

	"github.com/c360/opflow/errors"
	"github.com/c360/opflow/variant"
)

// Queue is the consumer side of an input queue.
type Queue interface {
	Peek() (variant.Variant, bool)
	Pop() (variant.Variant, error)
}

// Line is one input line of an operation.
type Line struct {
	Queue Queue

	// Feedback lines are fed by a loop that starts at the owning operation.
	// Pause and Resume found on them are echoes of tags the operation relayed
	// itself and are dropped. An operation stops once it relays Stop, so a
	// Stop on a feedback line means the loop ended on its own and the
	// operation stops too.
	Feedback bool
}

// Action is what the owning operation should do next.
type Action int

const (
	// Wait means no line is ready.
	Wait Action = iota
	// Process means Decision.Values holds a group for the processing function.
	Process
	// RelayStop means Stop was consumed and must be relayed on every output.
	RelayStop
	// RelayPause means all lines paused and Pause must be relayed.
	RelayPause
	// RelayResume means all lines resumed and Resume must be relayed.
	RelayResume
	// RelaySyncStart means every line opened a bracket together.
	RelaySyncStart
	// RelaySyncEnd means every line closed a bracket together.
	RelaySyncEnd
	// BeginPause means some but not all lines presented Pause.
	BeginPause
)

var actionNames = [...]string{
	Wait:           "Wait",
	Process:        "Process",
	RelayStop:      "RelayStop",
	RelayPause:     "RelayPause",
	RelayResume:    "RelayResume",
	RelaySyncStart: "RelaySyncStart",
	RelaySyncEnd:   "RelaySyncEnd",
	BeginPause:     "BeginPause",
}

func (a Action) String() string {
	if a >= 0 && int(a) < len(actionNames) {
		return actionNames[a]
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Decision is the outcome of one Controller.Next call.
type Decision struct {
	Action Action

	// Line is the served line for independent Process decisions, and -1
	// when the decision covers every line.
	Line int

	// Values has one entry per line for Process decisions. Independent
	// controllers fill only Values[Line].
	Values []variant.Variant

	// Tag is the relayed control tag for Relay* actions.
	Tag variant.TypeID
}

// Controller inspects input heads and consumes what it decides on.
type Controller interface {
	// Next pops whatever the returned decision covers. Errors are
	// *errors.ProtocolError values and are fatal to the pipeline.
	Next() (Decision, error)

	// Reset clears nesting counters and pause bookkeeping.
	Reset()

	// Nesting returns a copy of the per-line open bracket counters.
	Nesting() []int
}

func protocolViolation(line int, reason string) error {
	return errors.NewProtocolError(line, reason)
}

func relay(a Action, tag variant.TypeID) Decision {
	return Decision{Action: a, Line: -1, Tag: tag}
}

var waitDecision = Decision{Action: Wait, Line: -1}

// isCommand reports whether t is a lifecycle tag (Stop, Pause, Resume).
func isCommand(t variant.TypeID) bool {
	return t == variant.Stop || t == variant.Pause || t == variant.Resume
}

func isSync(t variant.TypeID) bool {
	return t == variant.SyncStart || t == variant.SyncEnd
}

// lineState is bookkeeping shared by both controllers.
type lineState struct {
	lines   []Line
	nesting []int
	paused  bool
	pausing bool
}

func newLineState(lines []Line) lineState {
	ls := lineState{lines: make([]Line, len(lines)), nesting: make([]int, len(lines))}
	copy(ls.lines, lines)
	return ls
}

func (ls *lineState) Reset() {
	for i := range ls.nesting {
		ls.nesting[i] = 0
	}
	ls.paused = false
	ls.pausing = false
}

func (ls *lineState) Nesting() []int {
	out := make([]int, len(ls.nesting))
	copy(out, ls.nesting)
	return out
}

// dropEchoes pops Pause and Resume echoes from the heads of feedback lines.
// It reports whether anything was dropped, and consumes a Stop found there
// reporting loopStopped.
func (ls *lineState) dropEchoes() (dropped, loopStopped bool) {
	for _, l := range ls.lines {
		if !l.Feedback {
			continue
		}
		for {
			head, ok := l.Queue.Peek()
			if !ok || !isCommand(head.Type()) {
				break
			}
			_, _ = l.Queue.Pop()
			if head.Type() == variant.Stop {
				return dropped, true
			}
			dropped = true
		}
	}
	return dropped, false
}

// absorb pops the sync tag at the head of line i and adjusts its nesting.
func (ls *lineState) absorb(i int, t variant.TypeID) error {
	if t == variant.SyncEnd && ls.nesting[i] == 0 {
		return protocolViolation(i, "SyncEnd without open SyncStart")
	}
	if _, err := ls.lines[i].Queue.Pop(); err != nil {
		return err
	}
	if t == variant.SyncStart {
		ls.nesting[i]++
	} else {
		ls.nesting[i]--
	}
	return nil
}

// commandPairing checks the lifecycle tags at the heads of non-feedback
// lines. It returns the relay decision when every such line agrees, pops
// those heads, and reports in partial whether only some lines presented
// Pause or Resume.
func (ls *lineState) commandPairing(heads []variant.Variant, present []bool) (d Decision, partial bool, err error) {
	var pauses, resumes, primary int
	for i, l := range ls.lines {
		if l.Feedback {
			continue
		}
		primary++
		if !present[i] {
			continue
		}
		switch heads[i].Type() {
		case variant.Pause:
			pauses++
		case variant.Resume:
			if !ls.paused {
				return waitDecision, false, protocolViolation(i, "Resume without preceding Pause")
			}
			resumes++
		}
	}

	switch {
	case primary > 0 && pauses == primary:
		ls.popPrimary()
		ls.paused = true
		ls.pausing = false
		return relay(RelayPause, variant.Pause), false, nil
	case primary > 0 && resumes == primary:
		ls.popPrimary()
		ls.paused = false
		return relay(RelayResume, variant.Resume), false, nil
	}
	return waitDecision, pauses > 0 || resumes > 0, nil
}

func (ls *lineState) popPrimary() {
	for _, l := range ls.lines {
		if !l.Feedback {
			_, _ = l.Queue.Pop()
		}
	}
}

// beginPause returns BeginPause the first time a partial Pause is seen.
func (ls *lineState) beginPause(heads []variant.Variant, present []bool) (Decision, bool) {
	if ls.pausing || ls.paused {
		return waitDecision, false
	}
	for i, l := range ls.lines {
		if !l.Feedback && present[i] && heads[i].Type() == variant.Pause {
			ls.pausing = true
			return Decision{Action: BeginPause, Line: i, Tag: variant.Pause}, true
		}
	}
	return waitDecision, false
}

func (ls *lineState) peekAll(heads []variant.Variant, present []bool) (all bool) {
	all = true
	for i, l := range ls.lines {
		heads[i], present[i] = l.Queue.Peek()
		if !present[i] {
			all = false
		}
	}
	return all
}
