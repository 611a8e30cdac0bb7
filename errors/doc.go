// Package errors provides standardized error handling for opflow.
//
// # Overview
//
// Errors are sorted into three classes: Transient (temporary, retryable),
// Invalid (bad input or wiring, non-retryable), and Fatal (stop the pipeline).
//
// The runtime's own conditions map onto the classes as follows:
//
//   - ErrQueueFull: transient, resolved by backpressure
//   - ErrTypeMismatch: invalid, local to the reading operation
//   - ErrConnection, ErrAlreadyConnected: invalid, reported at validation time
//   - ErrProtocolViolation / *ProtocolError: fatal to the whole pipeline
//
// # Error Wrapping Pattern
//
// All error wrapping follows the format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions set the classification:
//
//	errors.WrapTransient(err, "Component", "Method", "action")
//	errors.WrapInvalid(err, "Component", "Method", "action")
//	errors.WrapFatal(err, "Component", "Method", "action")
//
// Wrap() keeps whatever classification the wrapped chain already carries.
//
// # Protocol Violations
//
// A malformed control-tag sequence is reported as a *ProtocolError carrying
// the operation and the input line. It unwraps to ErrProtocolViolation:
//
//	var pe *errors.ProtocolError
//	if errors.As(err, &pe) {
//	    log.Printf("operation %s line %d: %s", pe.Operation, pe.Line, pe.Reason)
//	}
package errors
