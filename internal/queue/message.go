package queue

import (
	"fmt"
	"strings"

	"github.com/feedworks/refresh-engine/internal/domain"
)

// DefaultMaxRetries is the retry budget handed to the worker. The worker
// re-enqueues with retryCount+1 on transient failure; the producer never
// retries on its own.
const DefaultMaxRetries = 3

// FeedRefreshMessage is the broker payload for one refresh batch. It is
// immutable once enqueued; the worker consumes it by value.
type FeedRefreshMessage struct {
	BatchID         string           `json:"batchId"`
	Timestamp       int64            `json:"timestamp"`
	UserID          string           `json:"userId"`
	Feeds           []domain.FeedRef `json:"feeds"`
	ExistingGUIDs   []string         `json:"existingGuids,omitempty"`
	NewestEntryDate string           `json:"newestEntryDate,omitempty"`
	Priority        domain.Priority  `json:"priority"`
	RetryCount      int              `json:"retryCount"`
	MaxRetries      int              `json:"maxRetries"`
}

func (m FeedRefreshMessage) Validate() error {
	if strings.TrimSpace(m.BatchID) == "" {
		return fmt.Errorf("batchId is required")
	}
	if len(m.Feeds) == 0 {
		return fmt.Errorf("at least one feed is required")
	}
	for i, feed := range m.Feeds {
		if strings.TrimSpace(feed.Title) == "" {
			return fmt.Errorf("feeds[%d]: feedTitle is required", i)
		}
		if strings.TrimSpace(feed.SourceURL) == "" {
			return fmt.Errorf("feeds[%d]: sourceUrl is required", i)
		}
	}
	if !m.Priority.IsValid() {
		return fmt.Errorf("invalid priority %q", m.Priority)
	}
	if m.RetryCount < 0 {
		return fmt.Errorf("retryCount must be >= 0")
	}
	if m.MaxRetries < 0 {
		return fmt.Errorf("maxRetries must be >= 0")
	}
	return nil
}
