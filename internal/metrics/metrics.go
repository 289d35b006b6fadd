package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all the application metrics
type Metrics struct {
	// HTTP request metrics
	HTTPRequestTotal    *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Storage operation metrics
	StorageOperationTotal    *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec

	// Lifecycle transition metrics
	TransitionTotal *prometheus.CounterVec

	// Expiry sweep metrics
	SweepRunTotal      prometheus.Counter
	SweepDisabledTotal prometheus.Counter

	// Asset deletion metrics
	AssetDeleteTotal *prometheus.CounterVec

	// Notification metrics
	NotifyTotal *prometheus.CounterVec
}

// Global metrics instance with mutex for thread safety
var (
	globalMetrics *Metrics
	metricsMutex  sync.Mutex
)

// NewMetrics creates a new Metrics instance with all required metrics
func NewMetrics() *Metrics {
	metricsMutex.Lock()
	defer metricsMutex.Unlock()

	// Return existing instance if already created
	if globalMetrics != nil {
		return globalMetrics
	}

	m := &Metrics{
		HTTPRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),

		StorageOperationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storage_operations_total",
			Help: "Total number of storage operations",
		}, []string{"operation", "status"}),

		StorageOperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storage_operation_duration_seconds",
			Help:    "Storage operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "status"}),

		TransitionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gift_transitions_total",
			Help: "Total number of gift lifecycle transitions",
		}, []string{"operation", "status"}),

		SweepRunTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gift_sweep_runs_total",
			Help: "Total number of expiry sweep executions",
		}),

		SweepDisabledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gift_sweep_disabled_total",
			Help: "Total number of gifts whose access was disabled by the sweep",
		}),

		AssetDeleteTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "asset_delete_total",
			Help: "Total number of asset store delete attempts",
		}, []string{"kind", "status"}),

		NotifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notify_total",
			Help: "Total number of gift-ready notification attempts",
		}, []string{"status"}),
	}

	// Register metrics with the default registry
	registerMetrics(m)

	// Store as global instance
	globalMetrics = m

	return m
}

// registerMetrics registers all metrics with the default registry
func registerMetrics(m *Metrics) {
	// Try to register each metric, ignore if already registered
	registerOrGet(m.HTTPRequestTotal)
	registerOrGet(m.HTTPRequestDuration)
	registerOrGet(m.StorageOperationTotal)
	registerOrGet(m.StorageOperationDuration)
	registerOrGet(m.TransitionTotal)
	registerOrGet(m.SweepRunTotal)
	registerOrGet(m.SweepDisabledTotal)
	registerOrGet(m.AssetDeleteTotal)
	registerOrGet(m.NotifyTotal)
}

// registerOrGet tries to register a metric, returns the existing one if already registered
func registerOrGet(c prometheus.Collector) prometheus.Collector {
	if err := prometheus.Register(c); err != nil {
		// If already registered, return the existing collector
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
	}
	return c
}
