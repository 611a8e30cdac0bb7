// Package buffer provides the bounded FIFO queue behind every input socket.
//
// A Queue has exactly one consumer (the owning operation's worker) and, by the
// one-source-per-input rule, one producer. When the queue is full the
// producer either blocks until space frees up (Block) or gets ErrQueueFull
// back (Reject). Statistics are always collected; Prometheus metrics are
// optional via WithMetrics.
package buffer

// Policy defines how Push behaves when the queue is at capacity.
type Policy int

const (
	// Block suspends the producer until space is available or its context ends.
	Block Policy = iota

	// Reject fails the push with ErrQueueFull.
	Reject
)

// String returns a human-readable representation of the policy.
func (p Policy) String() string {
	switch p {
	case Block:
		return "Block"
	case Reject:
		return "Reject"
	default:
		return "Unknown"
	}
}

// ParsePolicy maps a configuration string to a Policy.
func ParsePolicy(s string) (Policy, bool) {
	switch s {
	case "", "block", "Block":
		return Block, true
	case "reject", "Reject":
		return Reject, true
	default:
		return Block, false
	}
}

// DefaultCapacity is the queue size used when none is configured.
const DefaultCapacity = 16
