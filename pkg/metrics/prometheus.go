// Package metrics provides Prometheus metrics for the admission service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager owns every Prometheus collector the service exports.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Review pipeline
	registrationsCreated prometheus.Counter
	assignments          *prometheus.CounterVec
	reviewsSubmitted     *prometheus.CounterVec
	registrationsGraded  *prometheus.CounterVec
	beliefUpdateLatency  prometheus.Histogram
	beliefResets         prometheus.Counter

	// Admission
	statusTransitions *prometheus.CounterVec
	rsvpExpired       prometheus.Counter
	awaitingDecision  prometheus.Gauge

	// Store
	storeTransactions    *prometheus.CounterVec
	storeTxLatency       *prometheus.HistogramVec
	concurrencyRetries   prometheus.Counter
	registrationsTotal   prometheus.Gauge
	rankIndexSize        prometheus.Gauge
	rankQueryLatency     prometheus.Histogram
	rankIndexRebuildTime prometheus.Histogram

	// Event dispatch
	eventsPublished   prometheus.Counter
	eventsDelivered   prometheus.Counter
	eventsDuplicate   prometheus.Counter
	queueSize         prometheus.Gauge
	queueCapacity     prometheus.Gauge
	queueUtilization  prometheus.Gauge
	queueEnqueue      prometheus.Counter
	queueDequeue      prometheus.Counter
	queueEnqueueError prometheus.Counter

	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics; the system gauges cover the
// runtime. Only build info is taken from the stock collectors.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // process-wide registry

func init() { //nolint:gochecknoinits // global metrics setup
	customRegistry.MustRegister(collectors.NewBuildInfoCollector())
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// RefreshInterval is how often periodically sampled gauges, such as the
// system gauges, should be refreshed.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "admit",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.registrationsCreated = m.counter("registrations_created_total", "Registrations admitted into review")
	m.assignments = m.counterVec("assignments_total", "Assignment requests by outcome (assigned, none)", "outcome")
	m.reviewsSubmitted = m.counterVec("reviews_submitted_total", "Reviews accepted by grade", "grade")
	m.registrationsGraded = m.counterVec("registrations_graded_total", "Registrations that reached a consensus grade", "grade")
	m.beliefUpdateLatency = m.histogram("belief_update_latency_milliseconds", "Time to fold one review into an applicant belief", m.histogramBuckets)
	m.beliefResets = m.counter("belief_resets_total", "Applicant beliefs reset to the prior")

	m.statusTransitions = m.counterVec("status_transitions_total", "Application status transitions", "from", "to")
	m.rsvpExpired = m.counter("rsvp_expired_total", "Accepted registrations declined for a missed RSVP deadline")
	m.awaitingDecision = m.gauge("awaiting_decision", "Graded registrations still pending or waitlisted")

	m.storeTransactions = m.counterVec("store_transactions_total", "Units of work by store and outcome", "store", "outcome")
	m.storeTxLatency = m.histogramVec("store_transaction_latency_milliseconds", "Unit of work latency", "store")
	m.concurrencyRetries = m.counter("concurrency_retries_total", "Units of work retried after a concurrency conflict")
	m.registrationsTotal = m.gauge("registrations", "Registrations held by the store")
	m.rankIndexSize = m.gauge("rank_index_size", "Entries in the in-memory acceptance rank index")
	m.rankQueryLatency = m.histogram("rank_query_latency_milliseconds", "Acceptance ranking query latency", m.histogramBuckets)
	m.rankIndexRebuildTime = m.histogram("rank_index_rebuild_milliseconds", "Time to rebuild a hackathon's rank index", m.histogramBuckets)

	m.eventsPublished = m.counter("events_published_total", "Lifecycle events handed to the dispatcher")
	m.eventsDelivered = m.counter("events_delivered_total", "Lifecycle events delivered to notifiers")
	m.eventsDuplicate = m.counter("events_duplicate_total", "Lifecycle events dropped as already delivered")
	m.queueSize = m.gauge("queue_size", "Current size of the event queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum event queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Event queue utilization (size / capacity)")
	m.queueEnqueue = m.counter("queue_enqueue_total", "Events enqueued")
	m.queueDequeue = m.counter("queue_dequeue_total", "Events dequeued")
	m.queueEnqueueError = m.counter("queue_enqueue_errors_total", "Failed enqueue attempts")

	m.workerCount = m.gauge("worker_count", "Configured dispatch workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Dispatch workers currently delivering")
	m.workerIdleCount = m.gauge("worker_idle_count", "Dispatch workers waiting for events")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Per-event delivery latency", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Notifier delivery failures")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and kind", "component", "error_type")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap in use in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Review pipeline.

// RecordRegistrationCreated counts a registration entering review.
func RecordRegistrationCreated() {
	globalManager.registrationsCreated.Inc()
}

// RecordAssignment counts an assignment request; assigned is false when the
// pool was empty for the reviewer.
func RecordAssignment(assigned bool) {
	outcome := "none"
	if assigned {
		outcome = "assigned"
	}
	globalManager.assignments.WithLabelValues(outcome).Inc()
}

// RecordReviewSubmitted counts an accepted review.
func RecordReviewSubmitted(grade string) {
	globalManager.reviewsSubmitted.WithLabelValues(grade).Inc()
}

// RecordRegistrationGraded counts a consensus grade.
func RecordRegistrationGraded(grade string) {
	globalManager.registrationsGraded.WithLabelValues(grade).Inc()
}

// RecordBeliefUpdateLatency observes a belief update.
func RecordBeliefUpdateLatency(latencyMs float64) {
	globalManager.beliefUpdateLatency.Observe(latencyMs)
}

// RecordBeliefReset counts a belief reset.
func RecordBeliefReset() {
	globalManager.beliefResets.Inc()
}

// Admission.

// RecordStatusTransition counts an application status change.
func RecordStatusTransition(from, to string) {
	globalManager.statusTransitions.WithLabelValues(from, to).Inc()
}

// RecordRsvpExpired counts n expired acceptances.
func RecordRsvpExpired(n int) {
	if n > 0 {
		globalManager.rsvpExpired.Add(float64(n))
	}
}

// UpdateAwaitingDecision sets the number of graded registrations without a decision.
func UpdateAwaitingDecision(count int) {
	globalManager.awaitingDecision.Set(float64(count))
}

// Store.

// RecordStoreTransaction records one unit of work. Outcome is committed,
// conflict, or error.
func RecordStoreTransaction(store, outcome string, latencyMs float64) {
	globalManager.storeTransactions.WithLabelValues(store, outcome).Inc()
	globalManager.storeTxLatency.WithLabelValues(store).Observe(latencyMs)
}

// RecordConcurrencyRetry counts a retried unit of work.
func RecordConcurrencyRetry() {
	globalManager.concurrencyRetries.Inc()
}

// UpdateRegistrationsTotal sets the number of stored registrations.
func UpdateRegistrationsTotal(count int) {
	globalManager.registrationsTotal.Set(float64(count))
}

// UpdateRankIndexSize sets the number of indexed candidates.
func UpdateRankIndexSize(count int) {
	globalManager.rankIndexSize.Set(float64(count))
}

// RecordRankQueryLatency observes an acceptance ranking query.
func RecordRankQueryLatency(latencyMs float64) {
	globalManager.rankQueryLatency.Observe(latencyMs)
}

// RecordRankIndexRebuild observes a rank index rebuild.
func RecordRankIndexRebuild(latencyMs float64) {
	globalManager.rankIndexRebuildTime.Observe(latencyMs)
}

// Event dispatch.

// RecordEventPublished counts an event handed to the dispatcher.
func RecordEventPublished() {
	globalManager.eventsPublished.Inc()
}

// RecordEventDelivered counts an event delivered to notifiers.
func RecordEventDelivered() {
	globalManager.eventsDelivered.Inc()
}

// RecordEventDuplicate counts an event dropped as already delivered.
func RecordEventDuplicate() {
	globalManager.eventsDuplicate.Inc()
}

// UpdateQueueSize sets the current event queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the event queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the event queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue counts an enqueued event.
func RecordQueueEnqueue() {
	globalManager.queueEnqueue.Inc()
}

// RecordQueueDequeue counts a dequeued event.
func RecordQueueDequeue() {
	globalManager.queueDequeue.Inc()
}

// RecordQueueEnqueueError counts a failed enqueue.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueError.Inc()
}

// UpdateWorkerCount sets the number of dispatch workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	globalManager.workerIdleCount.Set(float64(count))
}

// RecordWorkerProcessingLatency observes one delivery.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError counts a failed delivery.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// HTTP.

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes an HTTP request.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System.

// UpdateSystemMemoryUsage sets heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
