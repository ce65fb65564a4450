package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollector("test", reg), reg
}

func TestCollector_RecordRun(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordRun("a1", 10*time.Millisecond, false, nil)
	c.RecordRun("a1", 10*time.Millisecond, false, errors.New("boom"))
	c.RecordRun("a1", 10*time.Millisecond, true, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsTotal.WithLabelValues("a1", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsTotal.WithLabelValues("a1", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsTotal.WithLabelValues("a1", "degraded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.degradedTotal.WithLabelValues("a1")))
}

func TestCollector_RecordToolCall(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordToolCall("echo", time.Millisecond, nil)
	c.RecordToolCall("echo", time.Millisecond, nil)
	c.RecordToolCall("divide", time.Millisecond, errors.New("div by zero"))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.toolCallsTotal.WithLabelValues("echo", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.toolCallsTotal.WithLabelValues("divide", "failed")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.toolDuration))
}

func TestCollector_Registration(t *testing.T) {
	c, reg := newTestCollector(t)
	c.RecordPhase("plan", time.Millisecond)
	c.RecordBrokerOp("set", nil)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["test_adapter_phase_duration_seconds"])
	assert.True(t, names["test_broker_operations_total"])
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordRun("a", time.Second, false, nil)
		c.RecordPhase("plan", time.Second)
		c.RecordToolCall("t", time.Second, nil)
		c.RecordBrokerOp("get", nil)
	})
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	c, _ := newTestCollector(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.RecordToolCall("echo", time.Microsecond, nil)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000.0, testutil.ToFloat64(c.toolCallsTotal.WithLabelValues("echo", "success")))
}
