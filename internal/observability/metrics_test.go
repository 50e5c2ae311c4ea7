package observability

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsPipelineCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncBatchEnqueued("HIGH")
	metrics.IncEnqueueFailure("queue_unreachable")
	metrics.IncCompletion("completed")
	metrics.IncDuplicateCompletion()
	metrics.ObserveBatchTurnaround(3 * time.Second)
	metrics.IncStreamSubscribers("push")
	metrics.DecStreamSubscribers("push")
	metrics.IncStreamPoll()

	if got := testutil.ToFloat64(metrics.batchesEnqueuedTotal.WithLabelValues("high")); got != 1 {
		t.Fatalf("batches_enqueued_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.enqueueFailuresTotal.WithLabelValues("queue_unreachable")); got != 1 {
		t.Fatalf("enqueue_failures_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.completionsTotal.WithLabelValues("completed")); got != 1 {
		t.Fatalf("completions_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.duplicateCompletionsTotal); got != 1 {
		t.Fatalf("duplicate_completions_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.streamSubscribers.WithLabelValues("push")); got != 0 {
		t.Fatalf("stream_subscribers = %v, want 0", got)
	}
	if got := testutil.ToFloat64(metrics.streamPollsTotal); got != 1 {
		t.Fatalf("stream_polls_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/livez", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/livez", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer resp.Body.Close()

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/livez", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	t.Parallel()

	var metrics *Metrics
	metrics.IncBatchEnqueued("normal")
	metrics.IncCompletion("failed")
	metrics.IncStreamPoll()
}
