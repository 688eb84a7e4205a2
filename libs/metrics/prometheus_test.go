package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetrics(prometheus.NewRegistry())
}

func TestRecordDispatch(t *testing.T) {
	m := newTestPrometheusMetrics()

	m.RecordDispatch("payment", "success", 150*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DispatchOutcomes.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DispatchOpcodes.WithLabelValues("payment")))
}

func TestRecordCoalescedTick(t *testing.T) {
	m := newTestPrometheusMetrics()

	m.RecordCoalescedTick("payment")
	m.RecordCoalescedTick("payment")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SchedulerCoalesced.WithLabelValues("payment")))
}

func TestRecordAutoPause(t *testing.T) {
	m := newTestPrometheusMetrics()

	m.RecordAutoPause("consecutive_failures")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AutoPauses.WithLabelValues("consecutive_failures")))
}

func TestRecordRPCCall(t *testing.T) {
	m := newTestPrometheusMetrics()

	m.RecordRPCCall("sendTransaction", "success", 80*time.Millisecond)
	m.RecordRPCCall("sendTransaction", "failure", 40*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCCalls.WithLabelValues("sendTransaction", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCCalls.WithLabelValues("sendTransaction", "failure")))
}

func TestUpdateRPCBreakerState(t *testing.T) {
	m := newTestPrometheusMetrics()

	m.UpdateRPCBreakerState("open")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCBreakerState.WithLabelValues("open")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RPCBreakerState.WithLabelValues("closed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RPCBreakerState.WithLabelValues("half_open")))

	m.UpdateRPCBreakerState("closed")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCBreakerState.WithLabelValues("closed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RPCBreakerState.WithLabelValues("open")))
}

func TestRecordWebhookDelivery(t *testing.T) {
	m := newTestPrometheusMetrics()

	m.RecordWebhookDelivery("payment.success", "delivered")
	m.RecordWebhookDelivery("payment.success", "dropped")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.WebhookDeliveries.WithLabelValues("payment.success", "delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WebhookDeliveries.WithLabelValues("payment.success", "dropped")))
}

func TestRecordAdminOperation(t *testing.T) {
	m := newTestPrometheusMetrics()

	m.RecordAdminOperation("withdraw_sol", "success")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdminOperations.WithLabelValues("withdraw_sol", "success")))
}

func TestUpdateGauges(t *testing.T) {
	m := newTestPrometheusMetrics()

	m.UpdateSchedulerBacklog(42)
	m.UpdateArmedTimers(7)
	m.UpdateActiveSubscriptions(1000)
	m.UpdateWebhookQueueDepth(3)
	m.UpdateCycleBalance(123456.0)
	m.UpdateActiveConnections(5)

	assert.Equal(t, 42.0, testutil.ToFloat64(m.SchedulerBacklog))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.SchedulerArmedTimers))
	assert.Equal(t, 1000.0, testutil.ToFloat64(m.SubscriptionsActive))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.WebhookQueueDepth))
	assert.Equal(t, 123456.0, testutil.ToFloat64(m.CycleBalance))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.ActiveConnections))
}

func TestGetRuntimeMetrics(t *testing.T) {
	m := newTestPrometheusMetrics()

	runtime := m.GetRuntimeMetrics()
	require.Contains(t, runtime, "goroutines")
	require.Contains(t, runtime, "memory_alloc")
	require.Contains(t, runtime, "gc_cycles")
}

func TestGetDefaultMetricsSingleton(t *testing.T) {
	// GetDefaultMetrics registers against prometheus.DefaultRegisterer, which
	// is shared process-wide; just confirm the singleton behavior holds.
	m1 := GetDefaultMetrics()
	m2 := GetDefaultMetrics()
	assert.Same(t, m1, m2)
}
