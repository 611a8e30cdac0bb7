package cache

import (
	"github.com/c360/opflow/metric"
)

// Option configures an LRU cache.
type Option[V any] func(*cacheOptions[V])

type cacheOptions[V any] struct {
	maxObjects    int
	maxBytes      int64
	sizer         Sizer[V]
	metricsReg    *metric.MetricsRegistry
	metricsPrefix string
	evictCallback EvictCallback[V]
}

// WithMaxObjects bounds the number of entries. Zero means unbounded.
func WithMaxObjects[V any](n int) Option[V] {
	return func(o *cacheOptions[V]) { o.maxObjects = n }
}

// WithMaxBytes bounds the estimated size of all entries. Zero means
// unbounded. It has no effect without WithSizer.
func WithMaxBytes[V any](n int64) Option[V] {
	return func(o *cacheOptions[V]) { o.maxBytes = n }
}

// WithSizer sets the function estimating entry sizes.
func WithSizer[V any](fn Sizer[V]) Option[V] {
	return func(o *cacheOptions[V]) { o.sizer = fn }
}

// WithMetrics exports cache statistics as Prometheus metrics labelled with
// prefix. If registry is nil or prefix is empty, this option is ignored.
func WithMetrics[V any](registry *metric.MetricsRegistry, prefix string) Option[V] {
	return func(o *cacheOptions[V]) {
		if registry != nil && prefix != "" {
			o.metricsReg = registry
			o.metricsPrefix = prefix
		}
	}
}

// WithEvictionCallback sets a function called for every evicted, deleted or
// cleared entry.
func WithEvictionCallback[V any](callback EvictCallback[V]) Option[V] {
	return func(o *cacheOptions[V]) { o.evictCallback = callback }
}

func applyOptions[V any](options ...Option[V]) *cacheOptions[V] {
	opts := &cacheOptions[V]{}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	return opts
}
