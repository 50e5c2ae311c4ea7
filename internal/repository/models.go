package repository

import (
	"time"

	"github.com/feedworks/refresh-engine/internal/domain"
)

// FeedModel is the persistence model for the feeds table. The table
// belongs to the external entry store; this service only reads it (stale
// checks, scheduler scans), it never fetches or parses feeds itself.
type FeedModel struct {
	ID            string  `gorm:"type:uuid;primaryKey"`
	Title         string  `gorm:"type:varchar(255);not null;uniqueIndex"`
	SourceURL     string  `gorm:"type:text;not null"`
	MediaType     *string `gorm:"type:varchar(50)"`
	LastFetchedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (FeedModel) TableName() string {
	return "feeds"
}

// BatchHistoryModel records terminal batch outcomes for audit. It is
// written best-effort by the completion receiver and never read on the
// hot path; the TTL'd status store remains the operational record.
type BatchHistoryModel struct {
	ID              string        `gorm:"type:varchar(64);primaryKey"`
	Status          domain.Status `gorm:"type:varchar(20);not null"`
	NewEntriesCount int           `gorm:"not null;default:0"`
	Error           *string       `gorm:"type:text"`
	QueuedAt        time.Time
	CompletedAt     time.Time
	CreatedAt       time.Time
}

func (BatchHistoryModel) TableName() string {
	return "batch_history"
}

func feedModelToDomain(m *FeedModel) *domain.Feed {
	if m == nil {
		return nil
	}

	return &domain.Feed{
		ID:            m.ID,
		Title:         m.Title,
		SourceURL:     m.SourceURL,
		MediaType:     m.MediaType,
		LastFetchedAt: m.LastFetchedAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func feedModelsToDomain(models []FeedModel) []domain.Feed {
	feeds := make([]domain.Feed, 0, len(models))
	for i := range models {
		feeds = append(feeds, *feedModelToDomain(&models[i]))
	}
	return feeds
}
