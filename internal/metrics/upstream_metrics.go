package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Domain metrics: outbound calls to the LLM, runner, ASR and SMS services,
// plus QA views, admin logins, sandbox runs, bulk imports and open SSE streams.
var (
	upstreamRequestsTotal   *prometheus.CounterVec
	upstreamRequestDuration *prometheus.HistogramVec
	qaViewsTotal            prometheus.Counter
	authLoginsTotal         *prometheus.CounterVec
	sandboxRunsTotal        *prometheus.CounterVec
	sseStreamsActive        prometheus.Gauge
	importEntriesTotal      *prometheus.CounterVec
	importDuration          prometheus.Histogram

	domainMetricsOnce sync.Once
)

func initializeDomainMetrics() {
	domainMetricsOnce.Do(func() {
		upstreamRequestsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upstream_requests_total",
				Help: "Total number of HTTP requests to upstream services",
			},
			[]string{"service", "status_code"},
		)

		upstreamRequestDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "upstream_request_duration_seconds",
				Help:    "Time spent waiting on upstream services",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"service"},
		)

		qaViewsTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "qa_views_total",
				Help: "Total number of public QA detail views",
			},
		)

		authLoginsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_logins_total",
				Help: "Admin login attempts by method and result",
			},
			[]string{"method", "result"},
		)

		sandboxRunsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_runs_total",
				Help: "Sandbox executions by language and result",
			},
			[]string{"language", "result"},
		)

		sseStreamsActive = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sse_streams_active",
				Help: "Number of open hot-QA event streams",
			},
		)

		importEntriesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qa_import_entries_total",
				Help: "QA entries processed by bulk imports",
			},
			[]string{"result"},
		)

		importDuration = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "qa_import_duration_seconds",
				Help:    "Time taken by a bulk import",
				Buckets: prometheus.DefBuckets,
			},
		)

		GetInstance().registry.MustRegister(
			upstreamRequestsTotal,
			upstreamRequestDuration,
			qaViewsTotal,
			authLoginsTotal,
			sandboxRunsTotal,
			sseStreamsActive,
			importEntriesTotal,
			importDuration,
		)
	})
}

// RecordUpstreamCall records one outbound HTTP call. statusCode is 0 when the
// request never got a response.
func RecordUpstreamCall(service string, startTime time.Time, statusCode int) {
	if !BusinessEnabled() {
		return
	}

	initializeDomainMetrics()

	upstreamRequestsTotal.WithLabelValues(service, strconv.Itoa(statusCode)).Inc()
	upstreamRequestDuration.WithLabelValues(service).Observe(time.Since(startTime).Seconds())
}

// RecordQaView counts a public detail view
func RecordQaView() {
	if !BusinessEnabled() {
		return
	}

	initializeDomainMetrics()

	qaViewsTotal.Inc()
}

// RecordLogin counts an admin login attempt. method is "password" or "email".
func RecordLogin(method string, success bool) {
	if !BusinessEnabled() {
		return
	}

	initializeDomainMetrics()

	result := "failure"
	if success {
		result = "success"
	}
	authLoginsTotal.WithLabelValues(method, result).Inc()
}

// RecordSandboxRun counts a sandbox execution
func RecordSandboxRun(language, result string) {
	if !BusinessEnabled() {
		return
	}

	initializeDomainMetrics()

	sandboxRunsTotal.WithLabelValues(language, result).Inc()
}

// StreamOpened and StreamClosed track open SSE streams
func StreamOpened() {
	if !BusinessEnabled() {
		return
	}
	initializeDomainMetrics()
	sseStreamsActive.Inc()
}

func StreamClosed() {
	if !BusinessEnabled() {
		return
	}
	initializeDomainMetrics()
	sseStreamsActive.Dec()
}

// RecordImport records the outcome of one bulk import
func RecordImport(startTime time.Time, stored, failed int) {
	if !BusinessEnabled() {
		return
	}

	initializeDomainMetrics()

	importEntriesTotal.WithLabelValues("stored").Add(float64(stored))
	importEntriesTotal.WithLabelValues("failed").Add(float64(failed))
	importDuration.Observe(time.Since(startTime).Seconds())
}
