package flow

import (
	"github.com/c360/opflow/variant"
)

type syncController struct {
	lineState
	heads   []variant.Variant
	present []bool
}

// NewSync returns a controller that hands the processing function one
// variant from every line at a time.
//
// Evaluation order on each call:
//  1. Stop at the head of any line is consumed and relayed. On a feedback
//     line it follows the variants the loop answered before ending.
//  2. Pause or Resume at the heads of all non-feedback lines is consumed
//     and relayed. Resume while not paused is a protocol violation.
//  3. With every line non-empty, SyncStart (or SyncEnd) on all lines is
//     consumed and relayed. A bracket on only some lines means those lines
//     are ahead: the bracket is absorbed into the line's nesting counter.
//  4. With a data variant at every head, one variant per line is consumed.
//  5. Anything else waits.
func NewSync(lines []Line) Controller {
	return &syncController{
		lineState: newLineState(lines),
		heads:     make([]variant.Variant, len(lines)),
		present:   make([]bool, len(lines)),
	}
}

func (c *syncController) Next() (Decision, error) {
	for {
		dropped, loopStopped := c.dropEchoes()
		if loopStopped {
			return relay(RelayStop, variant.Stop), nil
		}
		if dropped {
			continue
		}
		all := c.peekAll(c.heads, c.present)

		for i, l := range c.lines {
			if !l.Feedback && c.present[i] && c.heads[i].Type() == variant.Stop {
				_, _ = l.Queue.Pop()
				return relay(RelayStop, variant.Stop), nil
			}
		}

		d, partial, err := c.commandPairing(c.heads, c.present)
		if err != nil || d.Action != Wait {
			return d, err
		}

		if !all {
			if partial {
				if d, ok := c.beginPause(c.heads, c.present); ok {
					return d, nil
				}
			}
			return waitDecision, nil
		}

		d, absorbed, err := c.syncBrackets()
		if err != nil || d.Action != Wait {
			return d, err
		}
		if absorbed {
			continue
		}

		if partial {
			if d, ok := c.beginPause(c.heads, c.present); ok {
				return d, nil
			}
			return waitDecision, nil
		}

		return c.takeGroup()
	}
}

// syncBrackets handles SyncStart/SyncEnd heads. It reports absorbed when at
// least one line consumed a bracket on its own.
func (c *syncController) syncBrackets() (Decision, bool, error) {
	var starts, ends int
	for i := range c.lines {
		switch c.heads[i].Type() {
		case variant.SyncStart:
			starts++
		case variant.SyncEnd:
			ends++
		}
	}
	if starts == 0 && ends == 0 {
		return waitDecision, false, nil
	}

	n := len(c.lines)
	if starts == n {
		for i, l := range c.lines {
			_, _ = l.Queue.Pop()
			c.nesting[i]++
		}
		return relay(RelaySyncStart, variant.SyncStart), false, nil
	}
	if ends == n {
		for i := range c.lines {
			if c.nesting[i] == 0 {
				return waitDecision, false, protocolViolation(i, "SyncEnd without open SyncStart")
			}
		}
		for i, l := range c.lines {
			_, _ = l.Queue.Pop()
			c.nesting[i]--
		}
		return relay(RelaySyncEnd, variant.SyncEnd), false, nil
	}

	for i := range c.lines {
		if t := c.heads[i].Type(); isSync(t) {
			if err := c.absorb(i, t); err != nil {
				return waitDecision, false, err
			}
		}
	}
	return waitDecision, true, nil
}

// takeGroup pops one data variant per line. Every head was peeked as data
// by the single consumer, so the pops cannot fail.
func (c *syncController) takeGroup() (Decision, error) {
	for i := range c.lines {
		if c.heads[i].IsControl() {
			return waitDecision, nil
		}
	}
	values := make([]variant.Variant, len(c.lines))
	for i, l := range c.lines {
		v, err := l.Queue.Pop()
		if err != nil {
			return waitDecision, err
		}
		values[i] = v
	}
	return Decision{Action: Process, Line: -1, Values: values}, nil
}
