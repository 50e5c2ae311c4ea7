package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/feedworks/refresh-engine/internal/domain"
)

type FeedRepository interface {
	GetByTitles(ctx context.Context, titles []string) ([]domain.Feed, error)
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]domain.Feed, error)
}

type GormFeedRepo struct {
	db *gorm.DB
}

func NewGormFeedRepo(db *gorm.DB) *GormFeedRepo {
	return &GormFeedRepo{db: db}
}

func (r *GormFeedRepo) GetByTitles(ctx context.Context, titles []string) ([]domain.Feed, error) {
	if len(titles) == 0 {
		return nil, nil
	}

	var models []FeedModel
	err := r.db.WithContext(ctx).
		Where("title IN ?", titles).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	return feedModelsToDomain(models), nil
}

// ListStale returns feeds never fetched or last fetched before cutoff,
// oldest first, capped at limit.
func (r *GormFeedRepo) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]domain.Feed, error) {
	var models []FeedModel
	err := r.db.WithContext(ctx).
		Where("last_fetched_at IS NULL OR last_fetched_at < ?", cutoff).
		Order("last_fetched_at ASC NULLS FIRST").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	return feedModelsToDomain(models), nil
}
