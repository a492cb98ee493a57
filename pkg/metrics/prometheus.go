// Package metrics provides Prometheus metrics for the rollcall service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recompute outcomes used as the "result" label.
const (
	ResultSuccess              = "success"
	ResultConfigurationMissing = "configuration_missing"
	ResultStoreError           = "store_error"
	ResultFailed               = "failed"
)

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Scoring
	recomputeRuns       *prometheus.CounterVec
	recomputeDuration   prometheus.Histogram
	recomputeCoalesced  prometheus.Counter
	recordsProcessed    prometheus.Counter
	recordsSkipped      *prometheus.CounterVec
	playersRanked       *prometheus.GaugeVec
	scheduledRecomputes prometheus.Counter

	// Ingestion and administration
	attendanceIngested prometheus.Counter
	awardsIngested     prometheus.Counter
	settingsSaved      prometheus.Counter
	trialEvaluations   *prometheus.CounterVec

	// Store
	storeLatency *prometheus.HistogramVec

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerBusy              prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByType      *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec
	errorLatency      *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton used by the package-level helpers

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // keeps Go runtime collectors out of /healthz

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "rollcall",
		subsystem:        "reliability",
		histogramBuckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		enabled:          true,
		constLabels:      map[string]string{},
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
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.recomputeRuns = auto.NewCounterVec(
		m.counterOpts("recompute_runs_total", "Reliability recompute runs by result"),
		[]string{"result"},
	)
	m.recomputeDuration = auto.NewHistogram(
		m.histogramOpts("recompute_duration_milliseconds", "End-to-end recompute duration (fetch, compute, persist)", m.histogramBuckets),
	)
	m.recomputeCoalesced = auto.NewCounter(
		m.counterOpts("recompute_coalesced_total", "Recompute requests folded into an already pending job"),
	)
	m.recordsProcessed = auto.NewCounter(
		m.counterOpts("attendance_records_processed_total", "Attendance records counted by the aggregator"),
	)
	m.recordsSkipped = auto.NewCounterVec(
		m.counterOpts("attendance_records_skipped_total", "Attendance records skipped by the aggregator"),
		[]string{"reason"},
	)
	m.playersRanked = auto.NewGaugeVec(
		m.gaugeOpts("players_ranked", "Eligible players in the latest ranking per team"),
		[]string{"team_id"},
	)
	m.scheduledRecomputes = auto.NewCounter(
		m.counterOpts("scheduled_recomputes_total", "Recompute jobs enqueued by the scheduler"),
	)

	m.attendanceIngested = auto.NewCounter(
		m.counterOpts("attendance_ingested_total", "Attendance records written through the API"),
	)
	m.awardsIngested = auto.NewCounter(
		m.counterOpts("mvp_awards_ingested_total", "MVP awards written through the API"),
	)
	m.settingsSaved = auto.NewCounter(
		m.counterOpts("settings_saved_total", "Score settings rows activated"),
	)
	m.trialEvaluations = auto.NewCounterVec(
		m.counterOpts("trial_evaluations_total", "Trialist quick evaluations by decision"),
		[]string{"decision"},
	)

	m.storeLatency = auto.NewHistogramVec(
		m.histogramOpts("store_latency_milliseconds", "Store operation latency", m.histogramBuckets),
		[]string{"operation"},
	)

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Pending recompute jobs"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum pending recompute jobs"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "Queue size / capacity"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Jobs enqueued"))
	m.queueDequeued = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Jobs dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Rejected enqueue attempts"))

	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Configured recompute workers"))
	m.workerBusy = auto.NewGauge(m.gaugeOpts("worker_busy", "Workers currently running a recompute"))
	m.workerProcessingLatency = auto.NewHistogram(
		m.histogramOpts("worker_processing_latency_milliseconds", "Time a worker spends on one job", m.histogramBuckets),
	)
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Jobs that finished with an error"))

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "HTTP requests by endpoint, method and status"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration", m.histogramBuckets),
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorsByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Errors by component and type"),
		[]string{"component", "error_type"},
	)
	m.errorsByType = auto.NewCounterVec(
		m.counterOpts("errors_by_type_total", "Errors by type and severity"),
		[]string{"error_type", "severity"},
	)
	m.errorsByEndpoint = auto.NewCounterVec(
		m.counterOpts("errors_by_endpoint_total", "HTTP errors by endpoint"),
		[]string{"endpoint", "method", "error_type"},
	)
	m.errorLatency = auto.NewHistogramVec(
		m.histogramOpts("error_latency_milliseconds", "Latency of failed operations", m.histogramBuckets),
		[]string{"component", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(
		m.histogramOpts("system_gc_pause_time_milliseconds", "Average GC pause", []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100}),
	)
}

// RecordRecomputeRun counts a finished run and its duration.
func (m *Manager) RecordRecomputeRun(result string, durationMs float64) {
	if !m.enabled {
		return
	}
	m.recomputeRuns.WithLabelValues(result).Inc()
	m.recomputeDuration.Observe(durationMs)
}

// RecordRecomputeCoalesced counts a request absorbed by a pending job.
func (m *Manager) RecordRecomputeCoalesced() {
	if m.enabled {
		m.recomputeCoalesced.Inc()
	}
}

// RecordAggregation records processed and skipped counts of one run.
func (m *Manager) RecordAggregation(processed int, skippedByReason map[string]int) {
	if !m.enabled {
		return
	}
	m.recordsProcessed.Add(float64(processed))
	for reason, n := range skippedByReason {
		m.recordsSkipped.WithLabelValues(reason).Add(float64(n))
	}
}

// UpdatePlayersRanked sets the ranked player count for a team.
func (m *Manager) UpdatePlayersRanked(teamID string, n int) {
	if m.enabled {
		m.playersRanked.WithLabelValues(teamID).Set(float64(n))
	}
}

// RecordScheduledRecompute counts a scheduler enqueue.
func (m *Manager) RecordScheduledRecompute() {
	if m.enabled {
		m.scheduledRecomputes.Inc()
	}
}

// RecordAttendanceIngested counts records written through the API.
func (m *Manager) RecordAttendanceIngested(n int) {
	if m.enabled {
		m.attendanceIngested.Add(float64(n))
	}
}

// RecordAwardsIngested counts MVP awards written through the API.
func (m *Manager) RecordAwardsIngested(n int) {
	if m.enabled {
		m.awardsIngested.Add(float64(n))
	}
}

// RecordSettingsSaved counts a settings activation.
func (m *Manager) RecordSettingsSaved() {
	if m.enabled {
		m.settingsSaved.Inc()
	}
}

// RecordTrialEvaluation counts a trialist evaluation by decision.
func (m *Manager) RecordTrialEvaluation(decision string) {
	if m.enabled {
		m.trialEvaluations.WithLabelValues(decision).Inc()
	}
}

// RecordStoreLatency observes a store operation.
func (m *Manager) RecordStoreLatency(operation string, latencyMs float64) {
	if m.enabled {
		m.storeLatency.WithLabelValues(operation).Observe(latencyMs)
	}
}

// UpdateQueue sets size, capacity and utilization in one call.
func (m *Manager) UpdateQueue(size, capacity int) {
	if !m.enabled {
		return
	}
	m.queueSize.Set(float64(size))
	m.queueCapacity.Set(float64(capacity))
	if capacity > 0 {
		m.queueUtilization.Set(float64(size) / float64(capacity))
	}
}

// RecordQueueEnqueue counts an accepted job.
func (m *Manager) RecordQueueEnqueue() {
	if m.enabled {
		m.queueEnqueued.Inc()
	}
}

// RecordQueueDequeue counts a delivered job.
func (m *Manager) RecordQueueDequeue() {
	if m.enabled {
		m.queueDequeued.Inc()
	}
}

// RecordQueueEnqueueError counts a rejected job.
func (m *Manager) RecordQueueEnqueueError() {
	if m.enabled {
		m.queueEnqueueErrors.Inc()
	}
}

// UpdateWorkerCount sets the configured worker count.
func (m *Manager) UpdateWorkerCount(n int) {
	if m.enabled {
		m.workerCount.Set(float64(n))
	}
}

// WorkerBusy adjusts the busy worker gauge by delta.
func (m *Manager) WorkerBusy(delta int) {
	if m.enabled {
		m.workerBusy.Add(float64(delta))
	}
}

// RecordWorkerProcessingLatency observes the time spent on one job.
func (m *Manager) RecordWorkerProcessingLatency(latencyMs float64) {
	if m.enabled {
		m.workerProcessingLatency.Observe(latencyMs)
	}
}

// RecordWorkerError counts a failed job.
func (m *Manager) RecordWorkerError() {
	if m.enabled {
		m.workerErrors.Inc()
	}
}

// RecordHTTPRequest counts a request and observes its duration.
func (m *Manager) RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	if !m.enabled {
		return
	}
	m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByComponent counts an error raised inside a component.
func (m *Manager) RecordErrorByComponent(component, errorType string) {
	if m.enabled {
		m.errorsByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// RecordErrorByType counts an error by type and severity.
func (m *Manager) RecordErrorByType(errorType, severity string) {
	if m.enabled {
		m.errorsByType.WithLabelValues(errorType, severity).Inc()
	}
}

// RecordErrorByEndpoint counts an HTTP error.
func (m *Manager) RecordErrorByEndpoint(endpoint, method, errorType string) {
	if m.enabled {
		m.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
	}
}

// RecordErrorLatency observes the latency of a failed operation.
func (m *Manager) RecordErrorLatency(component, errorType string, latencyMs float64) {
	if m.enabled {
		m.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
	}
}

// UpdateSystem sets runtime gauges.
func (m *Manager) UpdateSystem(heapBytes uint64, goroutines int) {
	if !m.enabled {
		return
	}
	m.systemMemoryUsage.Set(float64(heapBytes))
	m.systemGoroutineCount.Set(float64(goroutines))
}

// RecordSystemGCPauseTime observes the average GC pause.
func (m *Manager) RecordSystemGCPauseTime(pauseMs float64) {
	if m.enabled {
		m.systemGCPauseTime.Observe(pauseMs)
	}
}

// Package-level helpers delegate to the global manager.

func RecordRecomputeRun(result string, durationMs float64) {
	globalManager.RecordRecomputeRun(result, durationMs)
}
func RecordRecomputeCoalesced() { globalManager.RecordRecomputeCoalesced() }
func RecordAggregation(processed int, skippedByReason map[string]int) {
	globalManager.RecordAggregation(processed, skippedByReason)
}
func UpdatePlayersRanked(teamID string, n int)   { globalManager.UpdatePlayersRanked(teamID, n) }
func RecordScheduledRecompute()                  { globalManager.RecordScheduledRecompute() }
func RecordAttendanceIngested(n int)             { globalManager.RecordAttendanceIngested(n) }
func RecordAwardsIngested(n int)                 { globalManager.RecordAwardsIngested(n) }
func RecordSettingsSaved()                       { globalManager.RecordSettingsSaved() }
func RecordTrialEvaluation(decision string)      { globalManager.RecordTrialEvaluation(decision) }
func RecordStoreLatency(op string, ms float64)   { globalManager.RecordStoreLatency(op, ms) }
func UpdateQueue(size, capacity int)             { globalManager.UpdateQueue(size, capacity) }
func RecordQueueEnqueue()                        { globalManager.RecordQueueEnqueue() }
func RecordQueueDequeue()                        { globalManager.RecordQueueDequeue() }
func RecordQueueEnqueueError()                   { globalManager.RecordQueueEnqueueError() }
func UpdateWorkerCount(n int)                    { globalManager.UpdateWorkerCount(n) }
func WorkerBusy(delta int)                       { globalManager.WorkerBusy(delta) }
func RecordWorkerProcessingLatency(ms float64)   { globalManager.RecordWorkerProcessingLatency(ms) }
func RecordWorkerError()                         { globalManager.RecordWorkerError() }
func RecordErrorByComponent(component, t string) { globalManager.RecordErrorByComponent(component, t) }
func RecordErrorByType(t, severity string)       { globalManager.RecordErrorByType(t, severity) }
func RecordErrorByEndpoint(endpoint, method, t string) {
	globalManager.RecordErrorByEndpoint(endpoint, method, t)
}
func RecordErrorLatency(component, t string, ms float64) {
	globalManager.RecordErrorLatency(component, t, ms)
}
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.RecordHTTPRequest(endpoint, method, statusCode, durationMs)
}
func UpdateSystem(heapBytes uint64, goroutines int) { globalManager.UpdateSystem(heapBytes, goroutines) }
func RecordSystemGCPauseTime(pauseMs float64)       { globalManager.RecordSystemGCPauseTime(pauseMs) }

// GetRegistry returns the registry served on /healthz.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
