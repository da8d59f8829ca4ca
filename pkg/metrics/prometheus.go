// Package metrics provides Prometheus metrics for the ttlink linking service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Linking
	decisions       *prometheus.CounterVec
	eventsIgnored   prometheus.Counter
	duplicates      prometheus.Counter
	manualLinks     *prometheus.CounterVec
	suggestLatency  prometheus.Histogram
	suggestFailures prometheus.Counter

	// History
	historySize      prometheus.Gauge
	historyDumps     *prometheus.CounterVec
	historyDumpTime  prometheus.Histogram
	historyEvictions *prometheus.CounterVec

	// Registration
	registrationTransitions *prometheus.CounterVec
	registrationLatency     prometheus.Histogram
	registrationInFlight    prometheus.Gauge
	registrationRuns        *prometheus.CounterVec
	queueSize               prometheus.Gauge
	workerCount             prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByComponent   *prometheus.CounterVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // process-wide registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager. Without WithPrometheusRegistry the
// collectors register on prometheus.DefaultRegisterer.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "ttlink",
		subsystem:        "linking",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		enabled:          true,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.constLabels, Buckets: m.histogramBuckets,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.decisions = auto.NewCounterVec(m.counterOpts("decisions_total",
		"Link decisions by outcome and source"), []string{"outcome", "source"})
	m.eventsIgnored = auto.NewCounter(m.counterOpts("events_ignored_total",
		"Events removed by ignore patterns before linking"))
	m.duplicates = auto.NewCounter(m.counterOpts("duplicates_flagged_total",
		"Linked pairs flagged by the duplicate guard"))
	m.manualLinks = auto.NewCounterVec(m.counterOpts("manual_links_total",
		"Manual work item selections by result"), []string{"result"})
	m.suggestLatency = auto.NewHistogram(m.histogramOpts("suggest_latency_milliseconds",
		"Latency of AI suggestion calls"))
	m.suggestFailures = auto.NewCounter(m.counterOpts("suggest_failures_total",
		"AI suggestion calls that failed and fell through"))

	m.historySize = auto.NewGauge(m.gaugeOpts("history_entries",
		"Live entries in the linking history"))
	m.historyDumps = auto.NewCounterVec(m.counterOpts("history_dumps_total",
		"History flushes to durable storage by result"), []string{"result"})
	m.historyDumpTime = auto.NewHistogram(m.histogramOpts("history_dump_latency_milliseconds",
		"Duration of history flushes"))
	m.historyEvictions = auto.NewCounterVec(m.counterOpts("history_evictions_total",
		"History entries evicted by reason"), []string{"reason"})

	m.registrationTransitions = auto.NewCounterVec(m.counterOpts("registration_transitions_total",
		"Registration state transitions by target state"), []string{"state"})
	m.registrationLatency = auto.NewHistogram(m.histogramOpts("registration_latency_milliseconds",
		"Latency of external registration calls"))
	m.registrationInFlight = auto.NewGauge(m.gaugeOpts("registration_in_flight",
		"Registration calls currently dispatched"))
	m.registrationRuns = auto.NewCounterVec(m.counterOpts("registration_runs_total",
		"Registration runs by final status"), []string{"status"})
	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size",
		"Registration jobs waiting for a worker"))
	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count",
		"Registration workers in the pool"))

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"HTTP requests by endpoint, method and status"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds",
		"HTTP request duration"), []string{"endpoint", "method", "status_code"})
	m.errorsByComponent = auto.NewCounterVec(m.counterOpts("errors_total",
		"Errors by component and type"), []string{"component", "type"})
}

// RecordDecision counts a link decision. outcome is linked, unlinked or ignored.
func RecordDecision(outcome, source string) {
	if !globalManager.enabled {
		return
	}
	globalManager.decisions.WithLabelValues(outcome, source).Inc()
}

// RecordEventsIgnored adds n ignored events.
func RecordEventsIgnored(n int) {
	if !globalManager.enabled {
		return
	}
	globalManager.eventsIgnored.Add(float64(n))
}

// RecordDuplicates adds n flagged duplicates.
func RecordDuplicates(n int) {
	if !globalManager.enabled {
		return
	}
	globalManager.duplicates.Add(float64(n))
}

// RecordManualLink counts a manual selection; result is ok, not_found or storage_error.
func RecordManualLink(result string) {
	if !globalManager.enabled {
		return
	}
	globalManager.manualLinks.WithLabelValues(result).Inc()
}

// RecordSuggestLatency records an AI suggestion call latency in milliseconds.
func RecordSuggestLatency(latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.suggestLatency.Observe(latencyMs)
}

// RecordSuggestFailure counts a failed AI suggestion call.
func RecordSuggestFailure() {
	if !globalManager.enabled {
		return
	}
	globalManager.suggestFailures.Inc()
}

// UpdateHistorySize sets the live history entry count.
func UpdateHistorySize(n int) {
	if !globalManager.enabled {
		return
	}
	globalManager.historySize.Set(float64(n))
}

// RecordHistoryDump records a flush and its duration.
func RecordHistoryDump(ok bool, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	globalManager.historyDumps.WithLabelValues(result).Inc()
	globalManager.historyDumpTime.Observe(latencyMs)
}

// RecordHistoryEvictions adds n evictions; reason is expired or capacity.
func RecordHistoryEvictions(reason string, n int) {
	if !globalManager.enabled || n == 0 {
		return
	}
	globalManager.historyEvictions.WithLabelValues(reason).Add(float64(n))
}

// RecordRegistrationTransition counts a transition into state.
func RecordRegistrationTransition(state string) {
	if !globalManager.enabled {
		return
	}
	globalManager.registrationTransitions.WithLabelValues(state).Inc()
}

// RecordRegistrationLatency records an external registration call latency.
func RecordRegistrationLatency(latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.registrationLatency.Observe(latencyMs)
}

// AddRegistrationInFlight adjusts the in-flight gauge by delta.
func AddRegistrationInFlight(delta int) {
	if !globalManager.enabled {
		return
	}
	globalManager.registrationInFlight.Add(float64(delta))
}

// RecordRegistrationRun counts a finished run; status is complete or cancelled.
func RecordRegistrationRun(status string) {
	if !globalManager.enabled {
		return
	}
	globalManager.registrationRuns.WithLabelValues(status).Inc()
}

// UpdateQueueSize sets the registration queue backlog.
func UpdateQueueSize(size int) {
	if !globalManager.enabled {
		return
	}
	globalManager.queueSize.Set(float64(size))
}

// UpdateWorkerCount sets the worker pool size.
func UpdateWorkerCount(count int) {
	if !globalManager.enabled {
		return
	}
	globalManager.workerCount.Set(float64(count))
}

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByComponent counts an error attributed to a component.
func RecordErrorByComponent(component, errorType string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the registry backing the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
