package queue

import (
	"strings"
	"testing"

	"github.com/feedworks/refresh-engine/internal/domain"
)

func validMessage() FeedRefreshMessage {
	return FeedRefreshMessage{
		BatchID:   "batch_1700000000000_abc123",
		Timestamp: 1700000000000,
		UserID:    "user-1",
		Feeds: []domain.FeedRef{
			{Title: "Feed A", SourceURL: "http://a.example/rss"},
		},
		Priority:   domain.PriorityNormal,
		MaxRetries: DefaultMaxRetries,
	}
}

func TestFeedRefreshMessageValidate(t *testing.T) {
	t.Parallel()

	if err := validMessage().Validate(); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
}

func TestFeedRefreshMessageValidateRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*FeedRefreshMessage)
		wantErr string
	}{
		{
			name:    "missing batch id",
			mutate:  func(m *FeedRefreshMessage) { m.BatchID = "  " },
			wantErr: "batchId",
		},
		{
			name:    "no feeds",
			mutate:  func(m *FeedRefreshMessage) { m.Feeds = nil },
			wantErr: "at least one feed",
		},
		{
			name:    "feed missing title",
			mutate:  func(m *FeedRefreshMessage) { m.Feeds[0].Title = "" },
			wantErr: "feedTitle",
		},
		{
			name:    "feed missing url",
			mutate:  func(m *FeedRefreshMessage) { m.Feeds[0].SourceURL = "" },
			wantErr: "sourceUrl",
		},
		{
			name:    "invalid priority",
			mutate:  func(m *FeedRefreshMessage) { m.Priority = "urgent" },
			wantErr: "priority",
		},
		{
			name:    "negative retry count",
			mutate:  func(m *FeedRefreshMessage) { m.RetryCount = -1 },
			wantErr: "retryCount",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			msg := validMessage()
			tt.mutate(&msg)

			err := msg.Validate()
			if err == nil {
				t.Fatal("Validate() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestPriorityValue(t *testing.T) {
	t.Parallel()

	if got := PriorityValue(domain.PriorityHigh); got != 2 {
		t.Fatalf("PriorityValue(high) = %d, want 2", got)
	}
	if got := PriorityValue(domain.PriorityNormal); got != 1 {
		t.Fatalf("PriorityValue(normal) = %d, want 1", got)
	}
	if got := PriorityValue(domain.Priority("bogus")); got != 0 {
		t.Fatalf("PriorityValue(bogus) = %d, want 0", got)
	}
}
