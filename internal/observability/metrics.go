package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Metrics stores Prometheus collectors for the refresh pipeline.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal         *prometheus.CounterVec
	httpRequestDuration       *prometheus.HistogramVec
	batchesEnqueuedTotal      *prometheus.CounterVec
	enqueueFailuresTotal      *prometheus.CounterVec
	completionsTotal          *prometheus.CounterVec
	duplicateCompletionsTotal prometheus.Counter
	batchTurnaroundSeconds    prometheus.Histogram
	streamSubscribers         *prometheus.GaugeVec
	streamPollsTotal          prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "refresh_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "refresh_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		batchesEnqueuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "refresh_engine",
				Name:      "batches_enqueued_total",
				Help:      "Total number of refresh batches enqueued, by priority.",
			},
			[]string{"priority"},
		),
		enqueueFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "refresh_engine",
				Name:      "enqueue_failures_total",
				Help:      "Total number of enqueue attempts that failed, by reason.",
			},
			[]string{"reason"},
		),
		completionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "refresh_engine",
				Name:      "completions_total",
				Help:      "Total number of worker completion callbacks, by terminal outcome.",
			},
			[]string{"outcome"},
		),
		duplicateCompletionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "refresh_engine",
				Name:      "duplicate_completions_total",
				Help:      "Completion callbacks ignored because the batch was already terminal.",
			},
		),
		batchTurnaroundSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "refresh_engine",
				Name:      "batch_turnaround_seconds",
				Help:      "Seconds between enqueue and worker-reported completion.",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
			},
		),
		streamSubscribers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "refresh_engine",
				Name:      "stream_subscribers",
				Help:      "Currently connected status stream subscribers, by delivery mode.",
			},
			[]string{"mode"},
		),
		streamPollsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "refresh_engine",
				Name:      "stream_polls_total",
				Help:      "Status store reads performed by fallback-mode poll loops.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.batchesEnqueuedTotal,
		m.enqueueFailuresTotal,
		m.completionsTotal,
		m.duplicateCompletionsTotal,
		m.batchTurnaroundSeconds,
		m.streamSubscribers,
		m.streamPollsTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// FiberHandler exposes the scrape endpoint on a fiber router.
func (m *Metrics) FiberHandler() fiber.Handler {
	scrape := fasthttpadaptor.NewFastHTTPHandler(m.Handler())
	return func(c *fiber.Ctx) error {
		scrape(c.Context())
		return nil
	}
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncBatchEnqueued(priority string) {
	if m == nil {
		return
	}
	m.batchesEnqueuedTotal.WithLabelValues(normalizeLabel(priority)).Inc()
}

func (m *Metrics) IncEnqueueFailure(reason string) {
	if m == nil {
		return
	}
	m.enqueueFailuresTotal.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *Metrics) IncCompletion(outcome string) {
	if m == nil {
		return
	}
	m.completionsTotal.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *Metrics) IncDuplicateCompletion() {
	if m == nil {
		return
	}
	m.duplicateCompletionsTotal.Inc()
}

func (m *Metrics) ObserveBatchTurnaround(duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.batchTurnaroundSeconds.Observe(seconds)
}

func (m *Metrics) IncStreamSubscribers(mode string) {
	if m == nil {
		return
	}
	m.streamSubscribers.WithLabelValues(normalizeLabel(mode)).Inc()
}

func (m *Metrics) DecStreamSubscribers(mode string) {
	if m == nil {
		return
	}
	m.streamSubscribers.WithLabelValues(normalizeLabel(mode)).Dec()
}

func (m *Metrics) IncStreamPoll() {
	if m == nil {
		return
	}
	m.streamPollsTotal.Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
