// Package metrics provides Prometheus metrics for the record report pipeline.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the pipeline.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Fetcher
	fetchAttempts   *prometheus.CounterVec
	fetchRetries    prometheus.Counter
	fetchOutcomes   *prometheus.CounterVec
	requestDuration prometheus.Histogram
	pacingWait      prometheus.Histogram

	// Run
	catalogMaps    prometheus.Gauge
	mapsProcessed  prometheus.Gauge
	reportRows     *prometheus.GaugeVec
	runDuration    prometheus.Gauge
	runLastSuccess prometheus.Gauge

	errorsByComponent *prometheus.CounterVec

	// Metrics listener
	httpRequests *prometheus.CounterVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "tempus",
		subsystem:        "records",
		histogramBuckets: []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 15000},
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

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
		Buckets:     m.histogramBuckets,
	}
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.fetchAttempts = auto.NewCounterVec(
		m.counterOpts("fetch_attempts_total", "Remote lookups issued, by attempt result"),
		[]string{"result"},
	)
	m.fetchRetries = auto.NewCounter(
		m.counterOpts("fetch_retries_total", "Attempts repeated after a transient failure"),
	)
	m.fetchOutcomes = auto.NewCounterVec(
		m.counterOpts("fetch_outcomes_total", "Per-map fetch outcomes, by outcome"),
		[]string{"outcome"},
	)
	m.requestDuration = auto.NewHistogram(
		m.histogramOpts("request_duration_milliseconds", "Remote lookup latency in milliseconds"),
	)
	m.pacingWait = auto.NewHistogram(
		m.histogramOpts("pacing_wait_milliseconds", "Time spent waiting on the request pacer in milliseconds"),
	)

	m.catalogMaps = auto.NewGauge(
		m.gaugeOpts("catalog_maps", "Number of maps in the loaded catalog"),
	)
	m.mapsProcessed = auto.NewGauge(
		m.gaugeOpts("maps_processed", "Maps with a final outcome in the current run"),
	)
	m.reportRows = auto.NewGaugeVec(
		m.gaugeOpts("report_rows", "Rows written per output table"),
		[]string{"table"},
	)
	m.runDuration = auto.NewGauge(
		m.gaugeOpts("run_duration_seconds", "Wall-clock duration of the last run"),
	)
	m.runLastSuccess = auto.NewGauge(
		m.gaugeOpts("run_last_success_unix", "Unix timestamp of the last completed run"),
	)

	m.errorsByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Errors by component and type"),
		[]string{"component", "error_type"},
	)

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Requests served by the metrics listener"),
		[]string{"endpoint", "method", "status_code"},
	)
}

// RecordFetchAttempt counts one remote lookup with its classified result.
func RecordFetchAttempt(result string) {
	globalManager.fetchAttempts.WithLabelValues(result).Inc()
}

// RecordFetchRetry counts one retried attempt.
func RecordFetchRetry() {
	globalManager.fetchRetries.Inc()
}

// RecordFetchOutcome counts the final outcome of one map.
func RecordFetchOutcome(outcome string) {
	globalManager.fetchOutcomes.WithLabelValues(outcome).Inc()
}

// RecordRequestDuration records remote lookup latency in milliseconds.
func RecordRequestDuration(latencyMs float64) {
	globalManager.requestDuration.Observe(latencyMs)
}

// RecordPacingWait records time blocked on the pacer in milliseconds.
func RecordPacingWait(waitMs float64) {
	globalManager.pacingWait.Observe(waitMs)
}

// UpdateCatalogMaps sets the size of the loaded catalog.
func UpdateCatalogMaps(count int) {
	globalManager.catalogMaps.Set(float64(count))
}

// UpdateMapsProcessed sets how many maps of the run are done.
func UpdateMapsProcessed(count int) {
	globalManager.mapsProcessed.Set(float64(count))
}

// UpdateReportRows sets the row count of an output table.
func UpdateReportRows(table string, rows int) {
	globalManager.reportRows.WithLabelValues(table).Set(float64(rows))
}

// RecordRunCompleted stores duration and completion time of a run.
func RecordRunCompleted(durationSeconds float64, finishedUnix int64) {
	globalManager.runDuration.Set(durationSeconds)
	globalManager.runLastSuccess.Set(float64(finishedUnix))
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordHTTPRequest counts one request to the metrics listener.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// WriteTextfile dumps the registry in the node_exporter textfile format.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, customRegistry); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteTextfile, err)
	}
	return nil
}
