package cache

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/opflow/metric"
)

type evictReason string

const (
	evictObjects evictReason = "object_budget"
	evictBytes   evictReason = "byte_budget"
)

// cacheMetrics mirrors Statistics for one cache, labeled by its prefix.
type cacheMetrics struct {
	lookups  *prometheus.CounterVec // result: hit, miss
	stores   *prometheus.CounterVec // kind: insert, update
	removals *prometheus.CounterVec // reason: delete, object_budget, byte_budget
	entries  prometheus.Gauge
	bytes    prometheus.Gauge
}

func newCacheMetrics(registry *metric.MetricsRegistry, prefix string) (*cacheMetrics, error) {
	labels := prometheus.Labels{"component": prefix}
	counterVec := func(name, help, label string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "cache",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, []string{label})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "cache",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}

	m := &cacheMetrics{
		lookups:  counterVec("lookups_total", "Cache lookups by result", "result"),
		stores:   counterVec("stores_total", "Cache stores by kind", "kind"),
		removals: counterVec("removals_total", "Entries removed from the cache by reason", "reason"),
		entries:  gauge("entries", "Entries currently cached"),
		bytes:    gauge("bytes", "Estimated size of all cached entries in bytes"),
	}

	for name, vec := range map[string]*prometheus.CounterVec{
		"cache_lookups":  m.lookups,
		"cache_stores":   m.stores,
		"cache_removals": m.removals,
	} {
		if err := registry.RegisterCounterVec(prefix, name, vec); err != nil {
			return nil, err
		}
	}
	if err := registry.RegisterGauge(prefix, "cache_entries", m.entries); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "cache_bytes", m.bytes); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *cacheMetrics) lookup(hit bool) {
	if hit {
		m.lookups.WithLabelValues("hit").Inc()
	} else {
		m.lookups.WithLabelValues("miss").Inc()
	}
}

func (m *cacheMetrics) store(created bool) {
	if created {
		m.stores.WithLabelValues("insert").Inc()
	} else {
		m.stores.WithLabelValues("update").Inc()
	}
}

func (m *cacheMetrics) remove(reason string) {
	m.removals.WithLabelValues(reason).Inc()
}

func (m *cacheMetrics) resize(entries int, bytes int64) {
	m.entries.Set(float64(entries))
	m.bytes.Set(float64(bytes))
}
