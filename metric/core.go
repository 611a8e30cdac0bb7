package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric exported by opflow.
const Namespace = "opflow"

// Metrics contains the runtime metrics shared by every operation.
type Metrics struct {
	OperationState     *prometheus.GaugeVec
	VariantsProcessed  *prometheus.CounterVec
	VariantsEmitted    *prometheus.CounterVec
	ControlTags        *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	Faults             *prometheus.CounterVec
	PipelinesRunning   prometheus.Gauge

	// Bridge metrics
	NATSConnected  prometheus.Gauge
	BridgeMessages *prometheus.CounterVec
}

// NewMetrics creates the core metric collectors. They are not registered.
func NewMetrics() *Metrics {
	return &Metrics{
		OperationState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "operation",
				Name:      "state",
				Help:      "Operation state (0=stopped, 1=starting, 2=running, 3=pausing, 4=paused, 5=stopping)",
			},
			[]string{"operation"},
		),

		VariantsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "operation",
				Name:      "processed_total",
				Help:      "Total number of input groups handed to processing",
			},
			[]string{"operation"},
		),

		VariantsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "operation",
				Name:      "emitted_total",
				Help:      "Total number of data variants emitted per output",
			},
			[]string{"operation", "output"},
		),

		ControlTags: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "operation",
				Name:      "control_tags_total",
				Help:      "Total number of control tags relayed",
			},
			[]string{"operation", "tag"},
		),

		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "operation",
				Name:      "processing_duration_seconds",
				Help:      "Time spent in one processing step",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
			[]string{"operation"},
		),

		Faults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "operation",
				Name:      "faults_total",
				Help:      "Total number of faults reported, by error class",
			},
			[]string{"operation", "class"},
		),

		PipelinesRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "pipeline",
				Name:      "running",
				Help:      "Number of pipelines currently started",
			},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS bridge connection status (0=disconnected, 1=connected)",
			},
		),

		BridgeMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "nats",
				Name:      "messages_total",
				Help:      "Total number of variants moved across the NATS bridge",
			},
			[]string{"operation", "direction"},
		),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.OperationState,
		c.VariantsProcessed,
		c.VariantsEmitted,
		c.ControlTags,
		c.ProcessingDuration,
		c.Faults,
		c.PipelinesRunning,
		c.NATSConnected,
		c.BridgeMessages,
	}
}

// RecordOperationState records the numeric state of an operation.
func (c *Metrics) RecordOperationState(operation string, state int) {
	c.OperationState.WithLabelValues(operation).Set(float64(state))
}

// RecordProcessed counts one processed input group.
func (c *Metrics) RecordProcessed(operation string, duration time.Duration) {
	c.VariantsProcessed.WithLabelValues(operation).Inc()
	c.ProcessingDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordEmitted counts one data variant sent on an output.
func (c *Metrics) RecordEmitted(operation, output string) {
	c.VariantsEmitted.WithLabelValues(operation, output).Inc()
}

// RecordControlTag counts one relayed control tag.
func (c *Metrics) RecordControlTag(operation, tag string) {
	c.ControlTags.WithLabelValues(operation, tag).Inc()
}

// RecordFault counts one fault.
func (c *Metrics) RecordFault(operation, class string) {
	c.Faults.WithLabelValues(operation, class).Inc()
}

// RecordNATSStatus records the bridge connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}

// RecordBridgeMessage counts one variant crossing the bridge.
func (c *Metrics) RecordBridgeMessage(operation, direction string) {
	c.BridgeMessages.WithLabelValues(operation, direction).Inc()
}
