package pipeline

import (
	"log/slog"

	"github.com/c360/opflow/metric"
)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics records the running pipelines gauge in registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(p *Pipeline) {
		if registry != nil {
			p.metrics = registry.CoreMetrics()
		}
	}
}

// WithHaltOnFault sets whether a processing fault stops the whole pipeline.
// Protocol violations always do. Defaults to true.
func WithHaltOnFault(halt bool) Option {
	return func(p *Pipeline) { p.haltOnFault = halt }
}

// WithID sets the run identifier. Defaults to a random UUID.
func WithID(id string) Option {
	return func(p *Pipeline) {
		if id != "" {
			p.id = id
		}
	}
}
