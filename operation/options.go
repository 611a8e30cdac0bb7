package operation

import (
	"log/slog"

	"github.com/c360/opflow/metric"
	"github.com/c360/opflow/pkg/buffer"
)

// Option configures an Operation.
type Option func(*config)

type inputSpec struct {
	name     string
	optional bool
	feedback bool
}

type config struct {
	inputs      []inputSpec
	outputs     []string
	capacity    int
	policy      buffer.Policy
	independent bool
	logger      *slog.Logger
	registry    *metric.MetricsRegistry
	listeners   []StateListener
}

// WithInput declares a required input. Inputs are numbered in declaration
// order and that number is the line index seen by the processor.
func WithInput(name string) Option {
	return func(c *config) { c.inputs = append(c.inputs, inputSpec{name: name}) }
}

// WithOptionalInput declares an input that may stay unconnected. An
// unconnected optional input takes no part in readiness.
func WithOptionalInput(name string) Option {
	return func(c *config) { c.inputs = append(c.inputs, inputSpec{name: name, optional: true}) }
}

// WithFeedbackInput declares an input fed by a loop that starts at this
// operation's own outputs.
func WithFeedbackInput(name string) Option {
	return func(c *config) { c.inputs = append(c.inputs, inputSpec{name: name, feedback: true}) }
}

// WithOutput declares an output. Outputs are numbered in declaration order.
func WithOutput(name string) Option {
	return func(c *config) { c.outputs = append(c.outputs, name) }
}

// WithQueueCapacity sets the capacity of every input queue.
func WithQueueCapacity(n int) Option {
	return func(c *config) { c.capacity = n }
}

// WithPolicy sets the full-queue policy of every input queue.
func WithPolicy(p buffer.Policy) Option {
	return func(c *config) { c.policy = p }
}

// WithIndependentLines serves inputs one at a time instead of in
// synchronized groups.
func WithIndependentLines() Option {
	return func(c *config) { c.independent = true }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records runtime metrics and queue statistics in registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(c *config) { c.registry = registry }
}

// WithStateListener adds a state change observer.
func WithStateListener(fn StateListener) Option {
	return func(c *config) {
		if fn != nil {
			c.listeners = append(c.listeners, fn)
		}
	}
}
