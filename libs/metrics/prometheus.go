package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all service-specific Prometheus metrics.
type PrometheusMetrics struct {
	// Dispatch Metrics
	DispatchOutcomes *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	DispatchOpcodes  *prometheus.CounterVec

	// Scheduler Metrics
	SchedulerBacklog    prometheus.Gauge
	SchedulerArmedTimers prometheus.Gauge
	SchedulerCoalesced  *prometheus.CounterVec
	SubscriptionsActive prometheus.Gauge
	AutoPauses          *prometheus.CounterVec

	// RPC Metrics
	RPCCalls           *prometheus.CounterVec
	RPCCallDuration     *prometheus.HistogramVec
	RPCBreakerState     *prometheus.GaugeVec

	// Webhook Metrics
	WebhookDeliveries   *prometheus.CounterVec
	WebhookQueueDepth   prometheus.Gauge

	// Cycle / Admin Metrics
	CycleBalance       prometheus.Gauge
	CycleRefills       *prometheus.CounterVec
	AdminOperations    *prometheus.CounterVec

	// API & System Metrics
	APIRequests        *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
	ActiveConnections  prometheus.Gauge

	// Go Runtime Metrics (handled by default collector)
	registry *prometheus.Registry
}

var (
	defaultMetrics     *PrometheusMetrics
	defaultMetricsOnce sync.Once
)

// GetDefaultMetrics returns the singleton metrics instance.
func GetDefaultMetrics() *PrometheusMetrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewPrometheusMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// NewPrometheusMetrics creates a new PrometheusMetrics instance.
func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(registerer)

	m := &PrometheusMetrics{
		// Dispatch Metrics
		DispatchOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "dispatch_outcomes_total",
				Help:      "Total dispatch attempts by outcome",
			},
			[]string{"outcome"}, // success, chain_reject, transient, skipped
		),

		DispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Dispatch call duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
			},
			[]string{"opcode", "outcome"},
		),

		DispatchOpcodes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "dispatch_opcodes_total",
				Help:      "Total dispatches by opcode",
			},
			[]string{"opcode"}, // payment, reminder
		),

		// Scheduler Metrics
		SchedulerBacklog: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "scheduler_backlog",
				Help:      "Number of subscriptions overdue for dispatch",
			},
		),

		SchedulerArmedTimers: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "scheduler_armed_timers",
				Help:      "Number of timers currently armed",
			},
		),

		SchedulerCoalesced: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "scheduler_coalesced_ticks_total",
				Help:      "Ticks coalesced because a dispatch was already in flight",
			},
			[]string{"kind"}, // payment, reminder
		),

		SubscriptionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "subscriptions_active",
				Help:      "Number of subscriptions currently active",
			},
		),

		AutoPauses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "subscriptions_auto_paused_total",
				Help:      "Total subscriptions auto-paused after exhausting retries",
			},
			[]string{"reason"},
		),

		// RPC Metrics
		RPCCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "rpc_calls_total",
				Help:      "Total settlement-chain RPC calls by method and result",
			},
			[]string{"method", "result"}, // success, failure, timeout
		),

		RPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "rpc_call_duration_seconds",
				Help:      "Settlement-chain RPC call duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
			},
			[]string{"method"},
		),

		RPCBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "rpc_circuit_breaker_state",
				Help:      "RPC circuit breaker state (1=active, 0=inactive) by state name",
			},
			[]string{"state"}, // closed, open, half_open
		),

		// Webhook Metrics
		WebhookDeliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "webhook_deliveries_total",
				Help:      "Total webhook delivery attempts by event and result",
			},
			[]string{"event", "result"}, // delivered, dropped, exhausted
		),

		WebhookQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "webhook_queue_depth",
				Help:      "Number of events currently queued for webhook delivery",
			},
		),

		// Cycle / Admin Metrics
		CycleBalance: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "cycle_balance",
				Help:      "Current operating-cost cycle balance",
			},
		),

		CycleRefills: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "cycle_refills_total",
				Help:      "Total cycle refills from collected fees",
			},
			[]string{"source"},
		),

		AdminOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "admin_operations_total",
				Help:      "Total administrative operations by kind and result",
			},
			[]string{"operation", "result"},
		),

		// API & System Metrics
		APIRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "api_requests_total",
				Help:      "Total API requests by endpoint, method, and status",
			},
			[]string{"endpoint", "method", "status"},
		),

		APIRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "api_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"endpoint", "method"},
		),

		ActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "api_connections_active",
				Help:      "Number of active API connections",
			},
		),
	}

	// Register Go runtime metrics
	if reg, ok := registerer.(*prometheus.Registry); ok {
		m.registry = reg
		reg.MustRegister(prometheus.NewGoCollector())
		reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	}

	return m
}

// RecordDispatch records a single dispatch attempt.
func (m *PrometheusMetrics) RecordDispatch(opcode, outcome string, duration time.Duration) {
	m.DispatchOutcomes.WithLabelValues(outcome).Inc()
	m.DispatchDuration.WithLabelValues(opcode, outcome).Observe(duration.Seconds())
	m.DispatchOpcodes.WithLabelValues(opcode).Inc()
}

// RecordCoalescedTick records a tick that was coalesced behind an in-flight
// dispatch rather than fired separately.
func (m *PrometheusMetrics) RecordCoalescedTick(kind string) {
	m.SchedulerCoalesced.WithLabelValues(kind).Inc()
}

// RecordAutoPause records a subscription auto-paused after exhausting its
// consecutive-failure budget.
func (m *PrometheusMetrics) RecordAutoPause(reason string) {
	m.AutoPauses.WithLabelValues(reason).Inc()
}

// RecordRPCCall records a settlement-chain RPC call.
func (m *PrometheusMetrics) RecordRPCCall(method, result string, duration time.Duration) {
	m.RPCCalls.WithLabelValues(method, result).Inc()
	m.RPCCallDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// UpdateRPCBreakerState zeroes every other state and sets the given one to
// active, a one-hot encoding across closed/open/half_open.
func (m *PrometheusMetrics) UpdateRPCBreakerState(state string) {
	m.RPCBreakerState.WithLabelValues(state).Set(1)
	for _, s := range []string{"closed", "open", "half_open"} {
		if s != state {
			m.RPCBreakerState.WithLabelValues(s).Set(0)
		}
	}
}

// RecordWebhookDelivery records a webhook delivery attempt's final result.
func (m *PrometheusMetrics) RecordWebhookDelivery(event, result string) {
	m.WebhookDeliveries.WithLabelValues(event, result).Inc()
}

// RecordAdminOperation records an administrative operation's result.
func (m *PrometheusMetrics) RecordAdminOperation(operation, result string) {
	m.AdminOperations.WithLabelValues(operation, result).Inc()
}

// RecordCycleRefill records a cycle-balance refill from a given source.
func (m *PrometheusMetrics) RecordCycleRefill(source string, amount float64) {
	m.CycleRefills.WithLabelValues(source).Inc()
	_ = amount // amount is reported via UpdateCycleBalance, not accumulated here
}

// RecordAPIRequest records API request metrics.
func (m *PrometheusMetrics) RecordAPIRequest(endpoint, method, status string, duration time.Duration) {
	m.APIRequests.WithLabelValues(endpoint, method, status).Inc()
	m.APIRequestDuration.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// UpdateSchedulerBacklog updates the overdue-subscription gauge.
func (m *PrometheusMetrics) UpdateSchedulerBacklog(count int) {
	m.SchedulerBacklog.Set(float64(count))
}

// UpdateArmedTimers updates the currently-armed-timer gauge.
func (m *PrometheusMetrics) UpdateArmedTimers(count int) {
	m.SchedulerArmedTimers.Set(float64(count))
}

// UpdateActiveSubscriptions updates the active-subscription gauge.
func (m *PrometheusMetrics) UpdateActiveSubscriptions(count int) {
	m.SubscriptionsActive.Set(float64(count))
}

// UpdateWebhookQueueDepth updates the webhook delivery queue depth gauge.
func (m *PrometheusMetrics) UpdateWebhookQueueDepth(depth int) {
	m.WebhookQueueDepth.Set(float64(depth))
}

// UpdateCycleBalance updates the current cycle balance gauge.
func (m *PrometheusMetrics) UpdateCycleBalance(balance float64) {
	m.CycleBalance.Set(balance)
}

// UpdateActiveConnections updates the number of active connections.
func (m *PrometheusMetrics) UpdateActiveConnections(count int) {
	m.ActiveConnections.Set(float64(count))
}

// GetRuntimeMetrics returns current Go runtime metrics as a map.
func (m *PrometheusMetrics) GetRuntimeMetrics() map[string]interface{} {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return map[string]interface{}{
		"goroutines":     runtime.NumGoroutine(),
		"memory_alloc":   memStats.Alloc,
		"memory_total":   memStats.TotalAlloc,
		"memory_sys":     memStats.Sys,
		"gc_cycles":      memStats.NumGC,
		"gc_pause_total": memStats.PauseTotalNs,
	}
}
