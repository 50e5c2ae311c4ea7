package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/feedworks/refresh-engine/internal/domain"
	"github.com/feedworks/refresh-engine/internal/repository"
)

// StaleCheckResult reports which of the requested feeds are due for a
// refresh.
type StaleCheckResult struct {
	StaleFeedTitles []string
	TotalChecked    int
	StaleCount      int
}

// StaleChecker decides feed freshness from the fetch timestamps recorded
// in the feed catalog. A feed the catalog has never seen counts as stale.
type StaleChecker struct {
	feeds      repository.FeedRepository
	staleAfter time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

func NewStaleChecker(feeds repository.FeedRepository, staleAfter time.Duration, logger *zap.Logger) (*StaleChecker, error) {
	if feeds == nil {
		return nil, fmt.Errorf("feed repository is required")
	}
	if staleAfter <= 0 {
		return nil, fmt.Errorf("staleAfter must be positive, got %s", staleAfter)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StaleChecker{
		feeds:      feeds,
		staleAfter: staleAfter,
		logger:     logger,
		now:        time.Now,
	}, nil
}

func (c *StaleChecker) Check(ctx context.Context, titles []string) (*StaleCheckResult, error) {
	unique := dedupeTitles(titles)
	if len(unique) == 0 {
		return &StaleCheckResult{StaleFeedTitles: []string{}}, nil
	}

	known, err := c.feeds.GetByTitles(ctx, unique)
	if err != nil {
		return nil, fmt.Errorf("failed to load feeds for staleness check: %w", err)
	}

	byTitle := make(map[string]domain.Feed, len(known))
	for _, feed := range known {
		byTitle[feed.Title] = feed
	}

	cutoff := c.now().Add(-c.staleAfter)
	stale := make([]string, 0, len(unique))
	for _, title := range unique {
		feed, ok := byTitle[title]
		if !ok || feed.IsStale(cutoff) {
			stale = append(stale, title)
		}
	}

	c.logger.Debug("staleness check complete",
		zap.Int("checked", len(unique)),
		zap.Int("stale", len(stale)),
	)

	return &StaleCheckResult{
		StaleFeedTitles: stale,
		TotalChecked:    len(unique),
		StaleCount:      len(stale),
	}, nil
}

func dedupeTitles(titles []string) []string {
	seen := make(map[string]struct{}, len(titles))
	unique := make([]string, 0, len(titles))
	for _, title := range titles {
		trimmed := strings.TrimSpace(title)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		unique = append(unique, trimmed)
	}
	return unique
}
