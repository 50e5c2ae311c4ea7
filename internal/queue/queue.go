package queue

import (
	"context"

	"github.com/feedworks/refresh-engine/internal/domain"
)

// Publisher publishes refresh batch messages to the work queue consumed
// by the external feed-fetch worker.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg FeedRefreshMessage) error
	Close() error
}

const (
	// RefreshQueueName is the durable work queue the external worker reads.
	RefreshQueueName = "feed.refresh"
	// RefreshDLQName holds messages the worker exhausted retries on.
	RefreshDLQName = "dlq.feed.refresh"

	// queueMaxPriority is the RabbitMQ x-max-priority value for the
	// refresh queue; two levels are enough for the normal/high hint.
	queueMaxPriority int32 = 2
)

// PriorityValue maps the batch priority hint to a RabbitMQ message
// priority. Normal-priority messages may be delayed behind high ones,
// which is the only effect the hint is allowed to have.
func PriorityValue(priority domain.Priority) uint8 {
	switch priority {
	case domain.PriorityHigh:
		return 2
	case domain.PriorityNormal:
		return 1
	default:
		return 0
	}
}
