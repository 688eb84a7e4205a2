package metrics

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// CustomCollector collects metrics backed by the subscriptions table rather
// than updated in-process, so a read-only replica of the store can be
// scraped independently of the scheduler process.
type CustomCollector struct {
	db     *sql.DB
	logger *zap.Logger

	// Descriptors for custom metrics
	subscriptionsByStatusDesc *prometheus.Desc
	backlogDesc               *prometheus.Desc
	avgIntervalDesc           *prometheus.Desc

	// Mutex for thread safety
	mutex sync.Mutex

	// Cache for expensive queries (updated every 30s)
	lastUpdate   time.Time
	cachedValues map[string]float64
}

// NewCustomCollector creates a new custom metrics collector
func NewCustomCollector(db *sql.DB, logger *zap.Logger) *CustomCollector {
	return &CustomCollector{
		db:     db,
		logger: logger,

		subscriptionsByStatusDesc: prometheus.NewDesc(
			Namespace+"_subscriptions_by_status",
			"Number of subscriptions in the store by status",
			[]string{"status"},
			nil,
		),

		backlogDesc: prometheus.NewDesc(
			Namespace+"_backlog_by_window",
			"Number of active subscriptions due within a time window",
			[]string{"window"}, // overdue, due_1h, due_24h
			nil,
		),

		avgIntervalDesc: prometheus.NewDesc(
			Namespace+"_subscription_interval_seconds_avg",
			"Average billing interval across active subscriptions",
			nil,
			nil,
		),

		cachedValues: make(map[string]float64),
	}
}

// Describe implements the prometheus.Collector interface
func (c *CustomCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.subscriptionsByStatusDesc
	ch <- c.backlogDesc
	ch <- c.avgIntervalDesc
}

// Collect implements the prometheus.Collector interface
func (c *CustomCollector) Collect(ch chan<- prometheus.Metric) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	// Only update cached values every 30 seconds to avoid excessive DB load
	if time.Since(c.lastUpdate) > 30*time.Second {
		c.updateCachedValues()
		c.lastUpdate = time.Now()
	}

	c.collectSubscriptionsByStatus(ch)
	c.collectBacklog(ch)
	c.collectAvgInterval(ch)
}

// updateCachedValues updates the cached metric values from database
func (c *CustomCollector) updateCachedValues() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.cachedValues = make(map[string]float64)

	c.updateSubscriptionsByStatus(ctx)
	c.updateBacklog(ctx)
	c.updateAvgInterval(ctx)
}

func (c *CustomCollector) updateSubscriptionsByStatus(ctx context.Context) {
	query := `
		SELECT status, COUNT(*) as count
		FROM subscriptions
		GROUP BY status
	`

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		c.logger.Error("failed to query subscriptions by status", zap.Error(err))
		return
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count float64
		if err := rows.Scan(&status, &count); err != nil {
			c.logger.Error("failed to scan subscription status count", zap.Error(err))
			continue
		}
		c.cachedValues["status_"+status] = count
	}
}

func (c *CustomCollector) updateBacklog(ctx context.Context) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE next_execution_at <= EXTRACT(EPOCH FROM NOW())::BIGINT) AS overdue,
			COUNT(*) FILTER (WHERE next_execution_at > EXTRACT(EPOCH FROM NOW())::BIGINT AND next_execution_at <= EXTRACT(EPOCH FROM NOW())::BIGINT + 3600) AS due_1h,
			COUNT(*) FILTER (WHERE next_execution_at > EXTRACT(EPOCH FROM NOW())::BIGINT AND next_execution_at <= EXTRACT(EPOCH FROM NOW())::BIGINT + 86400) AS due_24h
		FROM subscriptions
		WHERE status = 'active'
	`

	var overdue, due1h, due24h float64
	if err := c.db.QueryRowContext(ctx, query).Scan(&overdue, &due1h, &due24h); err != nil {
		c.logger.Error("failed to query backlog", zap.Error(err))
		return
	}

	c.cachedValues["backlog_overdue"] = overdue
	c.cachedValues["backlog_due_1h"] = due1h
	c.cachedValues["backlog_due_24h"] = due24h
}

func (c *CustomCollector) updateAvgInterval(ctx context.Context) {
	query := `
		SELECT AVG(interval_seconds)
		FROM subscriptions
		WHERE status = 'active'
	`

	var avg sql.NullFloat64
	if err := c.db.QueryRowContext(ctx, query).Scan(&avg); err != nil {
		c.logger.Warn("failed to query average interval", zap.Error(err))
		return
	}
	if avg.Valid {
		c.cachedValues["avg_interval_seconds"] = avg.Float64
	}
}

func (c *CustomCollector) collectSubscriptionsByStatus(ch chan<- prometheus.Metric) {
	statuses := []string{"active", "paused", "cancelled", "expired"}

	for _, status := range statuses {
		count := c.cachedValues["status_"+status]
		ch <- prometheus.MustNewConstMetric(
			c.subscriptionsByStatusDesc,
			prometheus.GaugeValue,
			count,
			status,
		)
	}
}

func (c *CustomCollector) collectBacklog(ch chan<- prometheus.Metric) {
	windows := map[string]string{
		"overdue": "backlog_overdue",
		"due_1h":  "backlog_due_1h",
		"due_24h": "backlog_due_24h",
	}

	for window, key := range windows {
		ch <- prometheus.MustNewConstMetric(
			c.backlogDesc,
			prometheus.GaugeValue,
			c.cachedValues[key],
			window,
		)
	}
}

func (c *CustomCollector) collectAvgInterval(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(
		c.avgIntervalDesc,
		prometheus.GaugeValue,
		c.cachedValues["avg_interval_seconds"],
	)
}

// HealthCollector provides health-related metrics
type HealthCollector struct {
	uptime            time.Time
	uptimeDesc        *prometheus.Desc
	healthCheckDesc   *prometheus.Desc
	serviceStatusDesc *prometheus.Desc

	// Health check functions
	healthChecks map[string]func() bool
	mutex        sync.RWMutex
}

// NewHealthCollector creates a new health metrics collector
func NewHealthCollector() *HealthCollector {
	return &HealthCollector{
		uptime: time.Now(),

		uptimeDesc: prometheus.NewDesc(
			Namespace+"_uptime_seconds",
			"Service uptime in seconds",
			nil,
			nil,
		),

		healthCheckDesc: prometheus.NewDesc(
			Namespace+"_health_check_status",
			"Health check status (1=healthy, 0=unhealthy)",
			[]string{"check_name"},
			nil,
		),

		serviceStatusDesc: prometheus.NewDesc(
			Namespace+"_service_status",
			"Component status (1=up, 0=down)",
			[]string{"service"},
			nil,
		),

		healthChecks: make(map[string]func() bool),
	}
}

// RegisterHealthCheck registers a health check function
func (h *HealthCollector) RegisterHealthCheck(name string, checkFunc func() bool) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.healthChecks[name] = checkFunc
}

// Describe implements the prometheus.Collector interface
func (h *HealthCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- h.uptimeDesc
	ch <- h.healthCheckDesc
	ch <- h.serviceStatusDesc
}

// Collect implements the prometheus.Collector interface
func (h *HealthCollector) Collect(ch chan<- prometheus.Metric) {
	uptime := time.Since(h.uptime).Seconds()
	ch <- prometheus.MustNewConstMetric(
		h.uptimeDesc,
		prometheus.GaugeValue,
		uptime,
	)

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for name, checkFunc := range h.healthChecks {
		status := 0.0
		if checkFunc() {
			status = 1.0
		}

		ch <- prometheus.MustNewConstMetric(
			h.healthCheckDesc,
			prometheus.GaugeValue,
			status,
			name,
		)
	}

	// Component statuses are always reported as up (1); results of checks
	// added with RegisterHealthCheck are reported only under health_check_status.
	services := []string{"store", "signer", "chain_rpc", "scheduler", "webhook"}
	for _, service := range services {
		ch <- prometheus.MustNewConstMetric(
			h.serviceStatusDesc,
			prometheus.GaugeValue,
			1.0,
			service,
		)
	}
}

// MetricsCollectorManager manages all custom collectors
type MetricsCollectorManager struct {
	registry        *prometheus.Registry
	customCollector *CustomCollector
	healthCollector *HealthCollector
	logger          *zap.Logger
}

// NewMetricsCollectorManager creates a new collector manager
func NewMetricsCollectorManager(db *sql.DB, logger *zap.Logger) *MetricsCollectorManager {
	registry := prometheus.NewRegistry()

	customCollector := NewCustomCollector(db, logger)
	healthCollector := NewHealthCollector()

	registry.MustRegister(customCollector)
	registry.MustRegister(healthCollector)

	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	return &MetricsCollectorManager{
		registry:        registry,
		customCollector: customCollector,
		healthCollector: healthCollector,
		logger:          logger,
	}
}

// GetRegistry returns the Prometheus registry
func (m *MetricsCollectorManager) GetRegistry() *prometheus.Registry {
	return m.registry
}

// RegisterHealthCheck registers a health check with the health collector
func (m *MetricsCollectorManager) RegisterHealthCheck(name string, checkFunc func() bool) {
	m.healthCollector.RegisterHealthCheck(name, checkFunc)
}

// GetHealthSummary returns a summary of all health checks
func (m *MetricsCollectorManager) GetHealthSummary() map[string]interface{} {
	summary := map[string]interface{}{
		"uptime_seconds": time.Since(m.healthCollector.uptime).Seconds(),
		"health_checks":  make(map[string]bool),
		"services":       make(map[string]bool),
	}

	m.healthCollector.mutex.RLock()
	defer m.healthCollector.mutex.RUnlock()

	healthChecks := summary["health_checks"].(map[string]bool)
	for name, checkFunc := range m.healthCollector.healthChecks {
		healthChecks[name] = checkFunc()
	}

	services := summary["services"].(map[string]bool)
	defaultServices := []string{"store", "signer", "chain_rpc", "scheduler", "webhook"}
	for _, service := range defaultServices {
		services[service] = true
	}

	return summary
}
