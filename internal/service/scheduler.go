package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/feedworks/refresh-engine/internal/domain"
	"github.com/feedworks/refresh-engine/internal/repository"
)

const (
	defaultSchedulerInterval = 15 * time.Minute
	defaultSchedulerLimit    = 50

	schedulerUserID = "scheduler"
)

// batchEnqueuer is what the scheduler needs from the producer.
type batchEnqueuer interface {
	Enqueue(ctx context.Context, req RefreshRequest) (*EnqueueResult, error)
}

// RefreshScheduler periodically sweeps the feed catalog and enqueues a
// refresh batch for feeds whose last fetch has gone stale.
type RefreshScheduler struct {
	feeds      repository.FeedRepository
	enqueuer   batchEnqueuer
	logger     *zap.Logger
	interval   time.Duration
	staleAfter time.Duration
	limit      int
	now        func() time.Time
}

func NewRefreshScheduler(
	feeds repository.FeedRepository,
	enqueuer batchEnqueuer,
	interval time.Duration,
	staleAfter time.Duration,
	limit int,
	logger *zap.Logger,
) (*RefreshScheduler, error) {
	if feeds == nil {
		return nil, fmt.Errorf("feed repository is required")
	}
	if enqueuer == nil {
		return nil, fmt.Errorf("enqueuer is required")
	}
	if staleAfter <= 0 {
		return nil, fmt.Errorf("staleAfter must be positive, got %s", staleAfter)
	}
	if interval <= 0 {
		interval = defaultSchedulerInterval
	}
	if limit <= 0 {
		limit = defaultSchedulerLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RefreshScheduler{
		feeds:      feeds,
		enqueuer:   enqueuer,
		logger:     logger,
		interval:   interval,
		staleAfter: staleAfter,
		limit:      limit,
		now:        time.Now,
	}, nil
}

// Start blocks until ctx is cancelled. Scan failures are logged and the
// next tick tries again.
func (s *RefreshScheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Run an initial sweep so stale feeds do not wait for the first ticker edge.
	if err := s.sweep(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("scheduler initial sweep failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.sweep(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("scheduler sweep failed", zap.Error(err))
			}
		}
	}
}

func (s *RefreshScheduler) sweep(ctx context.Context) error {
	cutoff := s.now().Add(-s.staleAfter)

	stale, err := s.feeds.ListStale(ctx, cutoff, s.limit)
	if err != nil {
		return fmt.Errorf("failed to list stale feeds: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	req := RefreshRequest{
		UserID:     schedulerUserID,
		PostTitles: make([]string, 0, len(stale)),
		FeedURLs:   make([]string, 0, len(stale)),
		MediaTypes: make([]string, 0, len(stale)),
		Priority:   domain.PriorityNormal,
	}
	for _, feed := range stale {
		req.PostTitles = append(req.PostTitles, feed.Title)
		req.FeedURLs = append(req.FeedURLs, feed.SourceURL)
		mediaType := ""
		if feed.MediaType != nil {
			mediaType = *feed.MediaType
		}
		req.MediaTypes = append(req.MediaTypes, mediaType)
	}

	result, err := s.enqueuer.Enqueue(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to enqueue scheduled refresh: %w", err)
	}

	s.logger.Info("scheduled refresh enqueued",
		zap.String("batchId", result.BatchID),
		zap.Int("feeds", len(stale)),
	)
	return nil
}
