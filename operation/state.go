package operation

// State represents the lifecycle state of an operation
type State int32

const (
	// Stopped is the initial and terminal state
	Stopped State = iota
	// Starting resets queues, flow control and the processor
	Starting
	// Running processes input groups
	Running
	// Pausing means some input lines delivered Pause and others have not
	Pausing
	// Paused means Pause was relayed on every output
	Paused
	// Stopping means Stop was relayed and the worker is shutting down
	Stopping
)

// String returns a string representation of the state
func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Pausing:
		return "pausing"
	case Paused:
		return "paused"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// CanTransition reports whether the state machine allows s -> to.
func (s State) CanTransition(to State) bool {
	if to == Stopping {
		return s != Stopped && s != Stopping
	}
	switch s {
	case Stopped:
		return to == Starting
	case Starting:
		return to == Running
	case Running:
		return to == Pausing || to == Paused
	case Pausing:
		return to == Paused
	case Paused:
		return to == Running
	case Stopping:
		return to == Stopped
	}
	return false
}

// StateListener observes state changes. It runs on the operation's worker
// goroutine and must not block.
type StateListener func(operation string, from, to State)
