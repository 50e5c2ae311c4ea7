package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"

	"github.com/feedworks/refresh-engine/internal/domain"
	"github.com/feedworks/refresh-engine/internal/observability"
	"github.com/feedworks/refresh-engine/internal/queue"
	"github.com/feedworks/refresh-engine/internal/ratelimit"
	"github.com/feedworks/refresh-engine/internal/status"
)

const (
	maxBatchFeeds = 100

	batchIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	batchIDSuffix   = 10
)

// RefreshRequest is a validated-on-entry request to refresh a set of
// feeds as one batch.
type RefreshRequest struct {
	UserID          string
	PostTitles      []string
	FeedURLs        []string
	MediaTypes      []string
	ExistingGUIDs   []string
	NewestEntryDate string
	Priority        domain.Priority
}

// EnqueueResult is returned to the caller synchronously; the batch itself
// completes later via the worker's completion callback.
type EnqueueResult struct {
	BatchID                 string
	Status                  domain.Status
	QueuedAt                int64
	EstimatedProcessingTime string
}

// Producer validates refresh requests, writes the initial status record,
// and hands the batch to the work queue. Fire and forget: it never waits
// on the worker.
type Producer struct {
	store      status.Store
	publisher  queue.Publisher
	limiter    ratelimit.RateLimiter
	logger     *zap.Logger
	metrics    *observability.Metrics
	statusTTL  time.Duration
	now        func() time.Time
	newBatchID func(time.Time) (string, error)
}

func NewProducer(
	store status.Store,
	publisher queue.Publisher,
	limiter ratelimit.RateLimiter,
	statusTTL time.Duration,
	logger *zap.Logger,
	metrics *observability.Metrics,
) (*Producer, error) {
	if store == nil {
		return nil, fmt.Errorf("status store is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if statusTTL <= 0 {
		statusTTL = status.DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Producer{
		store:      store,
		publisher:  publisher,
		limiter:    limiter,
		logger:     logger,
		metrics:    metrics,
		statusTTL:  statusTTL,
		now:        time.Now,
		newBatchID: newBatchID,
	}, nil
}

func newBatchID(now time.Time) (string, error) {
	suffix, err := gonanoid.Generate(batchIDAlphabet, batchIDSuffix)
	if err != nil {
		return "", fmt.Errorf("failed to generate batch id: %w", err)
	}
	return fmt.Sprintf("batch_%d_%s", domain.EpochMillis(now), suffix), nil
}

func (p *Producer) Enqueue(ctx context.Context, req RefreshRequest) (*EnqueueResult, error) {
	if err := validateRefreshRequest(&req); err != nil {
		return nil, err
	}

	if p.limiter != nil {
		allowed, err := p.limiter.Allow(ctx, req.UserID)
		if err != nil {
			p.logger.Warn("rate limiter unavailable, admitting request",
				zap.String("userId", req.UserID),
				zap.Error(err),
			)
		} else if !allowed {
			p.metrics.IncEnqueueFailure("rate_limited")
			return nil, fmt.Errorf("%w: refresh quota exceeded for user %s", domain.ErrRateLimited, req.UserID)
		}
	}

	now := p.now()
	batchID, err := p.newBatchID(now)
	if err != nil {
		return nil, err
	}

	logger := observability.WithContextLogger(p.logger, ctx).With(observability.BatchID(batchID))

	record := &domain.BatchStatus{
		BatchID:  batchID,
		Status:   domain.StatusQueued,
		QueuedAt: domain.EpochMillis(now),
	}

	// The status write happens before the enqueue so a client can never
	// query a batch that "doesn't exist". If the enqueue below fails, the
	// orphaned queued record is reaped by TTL.
	if err := p.store.Put(ctx, record, p.statusTTL); err != nil {
		p.metrics.IncEnqueueFailure("status_store")
		logger.Error("failed to write initial batch status", zap.Error(err))
		return nil, fmt.Errorf("%w: status store unreachable", domain.ErrUnavailable)
	}

	msg := queue.FeedRefreshMessage{
		BatchID:         batchID,
		Timestamp:       record.QueuedAt,
		UserID:          req.UserID,
		Feeds:           zipFeeds(req),
		ExistingGUIDs:   req.ExistingGUIDs,
		NewestEntryDate: req.NewestEntryDate,
		Priority:        req.Priority,
		RetryCount:      0,
		MaxRetries:      queue.DefaultMaxRetries,
	}

	if err := p.publisher.Publish(ctx, queue.RefreshQueueName, msg); err != nil {
		p.metrics.IncEnqueueFailure("queue_unreachable")
		logger.Error("failed to enqueue refresh batch, status record orphaned until TTL",
			zap.Int("feeds", len(msg.Feeds)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: work queue unreachable", domain.ErrUnavailable)
	}

	p.metrics.IncBatchEnqueued(req.Priority.String())
	logger.Info("refresh batch enqueued",
		zap.String("userId", req.UserID),
		zap.Int("feeds", len(msg.Feeds)),
		zap.String("priority", req.Priority.String()),
	)

	return &EnqueueResult{
		BatchID:                 batchID,
		Status:                  domain.StatusQueued,
		QueuedAt:                record.QueuedAt,
		EstimatedProcessingTime: estimateProcessingTime(len(msg.Feeds)),
	}, nil
}

func validateRefreshRequest(req *RefreshRequest) error {
	if len(req.PostTitles) == 0 {
		return fmt.Errorf("%w: postTitles is required", domain.ErrValidation)
	}
	if len(req.FeedURLs) == 0 {
		return fmt.Errorf("%w: feedUrls is required", domain.ErrValidation)
	}
	if len(req.PostTitles) != len(req.FeedURLs) {
		return fmt.Errorf("%w: postTitles and feedUrls must have equal length", domain.ErrValidation)
	}
	if len(req.MediaTypes) != 0 && len(req.MediaTypes) != len(req.PostTitles) {
		return fmt.Errorf("%w: mediaTypes must be empty or match postTitles length", domain.ErrValidation)
	}
	if len(req.PostTitles) > maxBatchFeeds {
		return fmt.Errorf("%w: a batch may cover at most %d feeds", domain.ErrValidation, maxBatchFeeds)
	}
	for i, title := range req.PostTitles {
		if strings.TrimSpace(title) == "" {
			return fmt.Errorf("%w: postTitles[%d] is empty", domain.ErrValidation, i)
		}
		if strings.TrimSpace(req.FeedURLs[i]) == "" {
			return fmt.Errorf("%w: feedUrls[%d] is empty", domain.ErrValidation, i)
		}
	}
	if req.Priority == "" {
		req.Priority = domain.PriorityNormal
	}
	if !req.Priority.IsValid() {
		return fmt.Errorf("%w: invalid priority %q", domain.ErrValidation, req.Priority)
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = "anonymous"
	}
	return nil
}

func zipFeeds(req RefreshRequest) []domain.FeedRef {
	feeds := make([]domain.FeedRef, 0, len(req.PostTitles))
	for i := range req.PostTitles {
		feed := domain.FeedRef{
			Title:     strings.TrimSpace(req.PostTitles[i]),
			SourceURL: strings.TrimSpace(req.FeedURLs[i]),
		}
		if i < len(req.MediaTypes) {
			feed.MediaType = strings.TrimSpace(req.MediaTypes[i])
		}
		feeds = append(feeds, feed)
	}
	return feeds
}

// estimateProcessingTime is an advisory hint only; the worker owns the
// real schedule.
func estimateProcessingTime(feedCount int) string {
	estimate := time.Duration(10+5*feedCount) * time.Second
	return estimate.String()
}
