package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the agentbridge metric families. A nil *Collector is valid
// and records nothing.
type Collector struct {
	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	phaseDuration *prometheus.HistogramVec
	degradedTotal *prometheus.CounterVec

	toolCallsTotal *prometheus.CounterVec
	toolDuration   *prometheus.HistogramVec

	brokerOpsTotal *prometheus.CounterVec
}

// NewCollector registers the metric families under namespace with reg.
// A nil reg registers with prometheus.DefaultRegisterer.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{}

	// Adapter metrics
	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adapter_runs_total",
			Help:      "Total number of adapter invocations",
		},
		[]string{"agent", "status"}, // status: success, failed, degraded
	)

	c.runDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "adapter_run_duration_seconds",
			Help:      "Adapter invocation duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"agent"},
	)

	c.phaseDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "adapter_phase_duration_seconds",
			Help:      "Workflow phase duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"phase"},
	)

	c.degradedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adapter_degraded_total",
			Help:      "Total number of turns answered in degraded mode",
		},
		[]string{"agent"},
	)

	// Tool metrics
	c.toolCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of tool invocations",
		},
		[]string{"tool", "status"},
	)

	c.toolDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool invocation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	// Broker metrics
	c.brokerOpsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_operations_total",
			Help:      "Total number of team context operations",
		},
		[]string{"op", "status"},
	)

	return c
}

func status(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}

// RecordRun records one adapter invocation.
func (c *Collector) RecordRun(agent string, duration time.Duration, degraded bool, err error) {
	if c == nil {
		return
	}
	s := status(err)
	if degraded {
		s = "degraded"
		c.degradedTotal.WithLabelValues(agent).Inc()
	}
	c.runsTotal.WithLabelValues(agent, s).Inc()
	c.runDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

// RecordPhase records the duration of one workflow phase.
func (c *Collector) RecordPhase(phase string, duration time.Duration) {
	if c == nil {
		return
	}
	c.phaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// RecordToolCall records one tool invocation.
func (c *Collector) RecordToolCall(tool string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	c.toolCallsTotal.WithLabelValues(tool, status(err)).Inc()
	c.toolDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordBrokerOp records one team context operation.
func (c *Collector) RecordBrokerOp(op string, err error) {
	if c == nil {
		return
	}
	c.brokerOpsTotal.WithLabelValues(op, status(err)).Inc()
}
