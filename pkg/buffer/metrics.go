package buffer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/opflow/metric"
)

type queueMetrics struct {
	writes    prometheus.Counter
	reads     prometheus.Counter
	overflows prometheus.Counter
	rejects   prometheus.Counter
	drops     prometheus.Counter

	size        prometheus.Gauge
	utilization prometheus.Gauge
}

func newQueueMetrics(registry *metric.MetricsRegistry, prefix string) (*queueMetrics, error) {
	labels := prometheus.Labels{"component": prefix}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "queue",
			Name:        name,
			ConstLabels: labels,
			Help:        help,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "queue",
			Name:        name,
			ConstLabels: labels,
			Help:        help,
		})
	}

	m := &queueMetrics{
		writes:      counter("writes_total", "Total number of variants queued"),
		reads:       counter("reads_total", "Total number of variants consumed"),
		overflows:   counter("overflows_total", "Total number of pushes that found the queue full"),
		rejects:     counter("rejects_total", "Total number of pushes refused by the Reject policy"),
		drops:       counter("drops_total", "Total number of variants discarded by Reset or Close"),
		size:        gauge("size", "Current number of queued variants"),
		utilization: gauge("utilization", "Queue utilization (0.0 to 1.0)"),
	}

	counters := map[string]prometheus.Counter{
		"queue_writes":    m.writes,
		"queue_reads":     m.reads,
		"queue_overflows": m.overflows,
		"queue_rejects":   m.rejects,
		"queue_drops":     m.drops,
	}
	for name, c := range counters {
		if err := registry.RegisterCounter(prefix, name, c); err != nil {
			return nil, err
		}
	}
	if err := registry.RegisterGauge(prefix, "queue_size", m.size); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "queue_utilization", m.utilization); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *queueMetrics) recordWrite(size, capacity int) {
	m.writes.Inc()
	m.updateSize(size, capacity)
}

func (m *queueMetrics) recordRead(size, capacity int) {
	m.reads.Inc()
	m.updateSize(size, capacity)
}

func (m *queueMetrics) recordOverflow() {
	m.overflows.Inc()
}

func (m *queueMetrics) recordReject() {
	m.rejects.Inc()
}

func (m *queueMetrics) recordDrops(n int) {
	m.drops.Add(float64(n))
}

func (m *queueMetrics) updateSize(size, capacity int) {
	m.size.Set(float64(size))
	m.utilization.Set(float64(size) / float64(capacity))
}
