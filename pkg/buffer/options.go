package buffer

import (
	"github.com/c360/opflow/metric"
)

// Option configures a Queue.
type Option[T any] func(*queueOptions[T])

type queueOptions[T any] struct {
	policy Policy
	notify func()

	// metricsReg is optional; queue stats are also exported when set
	metricsReg *metric.MetricsRegistry

	// metricsPrefix is used as the component label for Prometheus metrics
	metricsPrefix string
}

// WithPolicy sets the overflow policy. Defaults to Block.
func WithPolicy[T any](policy Policy) Option[T] {
	return func(opts *queueOptions[T]) {
		opts.policy = policy
	}
}

// WithNotify sets a function called after every successful push, outside the
// queue lock. The owning operation uses it as its wake-up signal.
func WithNotify[T any](fn func()) Option[T] {
	return func(opts *queueOptions[T]) {
		opts.notify = fn
	}
}

// WithMetrics exports queue statistics under the given component label.
// A nil registry or empty prefix disables export.
func WithMetrics[T any](registry *metric.MetricsRegistry, prefix string) Option[T] {
	return func(opts *queueOptions[T]) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

func applyOptions[T any](options ...Option[T]) *queueOptions[T] {
	opts := &queueOptions[T]{policy: Block}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	return opts
}
