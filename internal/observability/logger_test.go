package observability

import (
	"context"
	"testing"
)

func TestNewLoggerLevels(t *testing.T) {
	t.Parallel()

	for _, level := range []string{"debug", "info", "warn", "error", "", " INFO "} {
		logger, err := NewLogger(level)
		if err != nil {
			t.Fatalf("NewLogger(%q) error = %v", level, err)
		}
		if logger == nil {
			t.Fatalf("NewLogger(%q) returned nil logger", level)
		}
	}
}

func TestNewLoggerInvalidLevel(t *testing.T) {
	t.Parallel()

	if _, err := NewLogger("verbose"); err == nil {
		t.Fatal("expected error for invalid log level")
	}
}

func TestCorrelationIDRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := WithCorrelationID(context.Background(), "corr-123")

	got, ok := CorrelationIDFromContext(ctx)
	if !ok {
		t.Fatal("correlation id should be present")
	}
	if got != "corr-123" {
		t.Fatalf("correlation id = %s, want corr-123", got)
	}

	if _, ok := CorrelationIDFromContext(context.Background()); ok {
		t.Fatal("empty context should not carry a correlation id")
	}
}

func TestWithContextLogger(t *testing.T) {
	t.Parallel()

	logger, err := NewLogger("info")
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	if got := WithContextLogger(logger, context.Background()); got != logger {
		t.Fatal("logger without correlation id should be returned unchanged")
	}

	ctx := WithCorrelationID(context.Background(), "corr-456")
	if got := WithContextLogger(logger, ctx); got == logger {
		t.Fatal("logger with correlation id should be enriched")
	}
}

func TestBatchIDField(t *testing.T) {
	t.Parallel()

	field := BatchID("batch_1700000000000_abc123")
	if field.Key != "batchId" {
		t.Fatalf("field key = %s, want batchId", field.Key)
	}
	if field.String != "batch_1700000000000_abc123" {
		t.Fatalf("field value = %s, want batch id", field.String)
	}
}
