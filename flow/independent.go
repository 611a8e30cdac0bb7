package flow

import (
	"github.com/c360/opflow/variant"
)

type independentController struct {
	lineState
	pending func() bool
	next    int
	heads   []variant.Variant
	present []bool
}

// NewIndependent returns a controller that serves one line at a time in
// round-robin order, for operations whose inputs are not positionally
// related (a request line and the loop that answers it, for instance).
//
// Stop is left at the head of its line while pending reports in-flight
// work, so answers still in the loop are consumed first. A Stop arriving on
// a feedback line ends the wait: nothing more will come back. Sync brackets are
// absorbed per line and not relayed. Pause and Resume are paired across the
// non-feedback lines as with NewSync. A nil pending never defers Stop.
func NewIndependent(lines []Line, pending func() bool) Controller {
	if pending == nil {
		pending = func() bool { return false }
	}
	return &independentController{
		lineState: newLineState(lines),
		pending:   pending,
		heads:     make([]variant.Variant, len(lines)),
		present:   make([]bool, len(lines)),
	}
}

func (c *independentController) Reset() {
	c.lineState.Reset()
	c.next = 0
}

func (c *independentController) Next() (Decision, error) {
	n := len(c.lines)
	for {
		dropped, loopStopped := c.dropEchoes()
		if loopStopped {
			return relay(RelayStop, variant.Stop), nil
		}
		if dropped {
			continue
		}
		c.peekAll(c.heads, c.present)

		d, partial, err := c.commandPairing(c.heads, c.present)
		if err != nil || d.Action != Wait {
			return d, err
		}

		retry := false
		for k := 0; k < n && !retry; k++ {
			i := (c.next + k) % n
			if !c.present[i] {
				continue
			}
			head := c.heads[i]
			switch t := head.Type(); {
			case t == variant.Stop:
				if c.pending() {
					continue
				}
				_, _ = c.lines[i].Queue.Pop()
				return relay(RelayStop, variant.Stop), nil
			case t == variant.Pause || t == variant.Resume:
				// Held until every non-feedback line presents it.
				continue
			case isSync(t):
				if err := c.absorb(i, t); err != nil {
					return waitDecision, err
				}
				retry = true
			default:
				v, err := c.lines[i].Queue.Pop()
				if err != nil {
					return waitDecision, err
				}
				c.next = (i + 1) % n
				values := make([]variant.Variant, n)
				values[i] = v
				return Decision{Action: Process, Line: i, Values: values}, nil
			}
		}
		if retry {
			continue
		}

		if partial {
			if d, ok := c.beginPause(c.heads, c.present); ok {
				return d, nil
			}
		}
		return waitDecision, nil
	}
}
