// Package metrics provides Prometheus metrics for the chorus rehearsal service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the chorus service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Pitch pipeline
	pitchFrames       *prometheus.CounterVec
	readingsEmitted   prometheus.Counter
	telemetryReceived prometheus.Counter

	// Room protocol
	commandsPublished *prometheus.CounterVec
	commandsApplied   *prometheus.CounterVec
	commandsIgnored   *prometheus.CounterVec
	busDropped        *prometheus.CounterVec
	replayBursts      prometheus.Counter

	// Satellite registry
	satellitesConnected prometheus.Gauge
	satellitesKnown     prometheus.Gauge
	satellitesStaled    prometheus.Counter

	// Clock
	clockOffset       prometheus.Gauge
	clockSyncFailures prometheus.Counter
	scheduledFired    prometheus.Counter
	scheduledCanceled prometheus.Counter
	scheduledLateness prometheus.Histogram

	// Mixdown
	mixdownLatency *prometheus.HistogramVec
	mixdownErrors  *prometheus.CounterVec
	mixdownTracks  prometheus.Histogram

	// Object store
	storeOps *prometheus.CounterVec

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue Metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Worker Metrics
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// System
	systemGoroutineCount prometheus.Gauge
	systemMemoryUsage    prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Configure replaces the global manager with one built from opts on a fresh
// registry. Call it once at startup, before metrics are served.
func Configure(opts ...Option) {
	reg := prometheus.NewRegistry()
	opts = append(opts[:len(opts):len(opts)], WithPrometheusRegistry(reg))
	globalManager = NewManager(opts...)
	customRegistry = reg
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "chorus",
		subsystem:        "rehearsal",
		histogramBuckets: prometheus.DefBuckets,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
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

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	m.pitchFrames = m.counterVec("pitch_frames_total", "Analysis frames by estimator outcome", "result")
	m.readingsEmitted = m.counter("pitch_readings_emitted_total", "Smoothed pitch readings emitted")
	m.telemetryReceived = m.counter("telemetry_received_total", "Telemetry messages received by masters")

	m.commandsPublished = m.counterVec("commands_published_total", "Room commands published by action", "action")
	m.commandsApplied = m.counterVec("commands_applied_total", "Room commands applied by action", "action")
	m.commandsIgnored = m.counterVec("commands_ignored_total", "Room commands ignored by reason", "reason")
	m.busDropped = m.counterVec("bus_dropped_total", "Bus messages dropped for slow subscribers", "topic")
	m.replayBursts = m.counter("replay_bursts_total", "Late-joiner state replays sent")

	m.satellitesConnected = m.gauge("satellites_connected", "Satellites currently considered connected")
	m.satellitesKnown = m.gauge("satellites_known", "Satellites ever observed in the room")
	m.satellitesStaled = m.counter("satellites_staled_total", "Satellites flipped to disconnected by the stale sweep")

	m.clockOffset = m.gauge("clock_offset_milliseconds", "Last estimated offset to the time authority")
	m.clockSyncFailures = m.counter("clock_sync_failures_total", "Clock probes that fell back to zero offset")
	m.scheduledFired = m.counter("scheduled_actions_fired_total", "Scheduled actions fired")
	m.scheduledCanceled = m.counter("scheduled_actions_canceled_total", "Scheduled actions canceled before firing")
	m.scheduledLateness = m.histogram("scheduled_action_lateness_milliseconds",
		"How far past the target authority time an action fired",
		[]float64{1, 5, 10, 20, 30, 50, 100, 250})

	m.mixdownLatency = m.histogramVec("mixdown_duration_milliseconds", "Mixdown render duration by stage", "stage")
	m.mixdownErrors = m.counterVec("mixdown_errors_total", "Mixdown failures by kind", "kind")
	m.mixdownTracks = m.histogram("mixdown_tracks", "Vocal tracks per mixdown", []float64{1, 2, 4, 8, 16, 32})

	m.storeOps = m.counterVec("store_operations_total", "Object store operations by op and outcome", "op", "outcome")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds",
		"endpoint", "method", "status_code")

	m.queueSize = m.gauge("queue_size", "Current size of the mixdown job queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of jobs enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of enqueue errors")

	m.workerCount = m.gauge("worker_count", "Configured mixdown workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Number of active workers")
	m.workerIdleCount = m.gauge("worker_idle_count", "Number of idle workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Worker job latency in milliseconds", m.histogramBuckets)
	m.workerErrorRate = m.counter("worker_errors_total", "Total number of worker errors")

	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap memory in use in bytes")
}

// RecordPitchFrame counts an analysis frame by outcome (pitched, gated, unclear, out_of_band).
func RecordPitchFrame(result string) {
	globalManager.pitchFrames.WithLabelValues(result).Inc()
}

// RecordReadingEmitted counts a smoothed reading leaving the smoother.
func RecordReadingEmitted() {
	globalManager.readingsEmitted.Inc()
}

// RecordTelemetryReceived counts an inbound telemetry message.
func RecordTelemetryReceived() {
	globalManager.telemetryReceived.Inc()
}

// RecordCommandPublished counts a published command.
func RecordCommandPublished(action string) {
	globalManager.commandsPublished.WithLabelValues(action).Inc()
}

// RecordCommandApplied counts a command applied to local state.
func RecordCommandApplied(action string) {
	globalManager.commandsApplied.WithLabelValues(action).Inc()
}

// RecordCommandIgnored counts a command dropped on receipt.
func RecordCommandIgnored(reason string) {
	globalManager.commandsIgnored.WithLabelValues(reason).Inc()
}

// RecordBusDropped counts a message dropped because a subscriber was full.
func RecordBusDropped(topic string) {
	globalManager.busDropped.WithLabelValues(topic).Inc()
}

// RecordReplayBurst counts a late-joiner replay.
func RecordReplayBurst() {
	globalManager.replayBursts.Inc()
}

// UpdateSatellites sets the registry gauges.
func UpdateSatellites(connected, known int) {
	globalManager.satellitesConnected.Set(float64(connected))
	globalManager.satellitesKnown.Set(float64(known))
}

// RecordSatelliteStaled counts a connected satellite flipped to disconnected.
func RecordSatelliteStaled() {
	globalManager.satellitesStaled.Inc()
}

// UpdateClockOffset sets the last estimated clock offset.
func UpdateClockOffset(offsetMs float64) {
	globalManager.clockOffset.Set(offsetMs)
}

// RecordClockSyncFailure counts a probe that fell back to zero offset.
func RecordClockSyncFailure() {
	globalManager.clockSyncFailures.Inc()
}

// RecordScheduledFired counts a fired scheduled action and its lateness.
func RecordScheduledFired(latenessMs float64) {
	globalManager.scheduledFired.Inc()
	globalManager.scheduledLateness.Observe(latenessMs)
}

// RecordScheduledCanceled counts a canceled scheduled action.
func RecordScheduledCanceled() {
	globalManager.scheduledCanceled.Inc()
}

// RecordMixdownDuration records one stage of a mixdown in milliseconds.
func RecordMixdownDuration(stage string, ms float64) {
	globalManager.mixdownLatency.WithLabelValues(stage).Observe(ms)
}

// RecordMixdownError counts a failed mixdown by kind (fetch, decode, render, encode).
func RecordMixdownError(kind string) {
	globalManager.mixdownErrors.WithLabelValues(kind).Inc()
}

// RecordMixdownTracks records how many vocal tracks went into a mix.
func RecordMixdownTracks(n int) {
	globalManager.mixdownTracks.Observe(float64(n))
}

// RecordStoreOp counts an object store operation.
func RecordStoreOp(op, outcome string) {
	globalManager.storeOps.WithLabelValues(op, outcome).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// Worker Metrics Functions.

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	globalManager.workerIdleCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// UpdateSystemMemoryUsage sets the heap memory in use.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// RefreshInterval is how often process-level gauges should be refreshed.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
