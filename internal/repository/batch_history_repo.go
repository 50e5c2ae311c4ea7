package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/feedworks/refresh-engine/internal/domain"
)

type BatchHistoryRepository interface {
	Record(ctx context.Context, record *domain.BatchStatus) error
}

type GormBatchHistoryRepo struct {
	db *gorm.DB
}

func NewGormBatchHistoryRepo(db *gorm.DB) *GormBatchHistoryRepo {
	return &GormBatchHistoryRepo{db: db}
}

// Record inserts the terminal outcome of a batch. Duplicate completions
// are ignored so at-least-once delivery from the worker cannot create
// duplicate rows.
func (r *GormBatchHistoryRepo) Record(ctx context.Context, record *domain.BatchStatus) error {
	if record == nil || !record.Status.IsTerminal() {
		return fmt.Errorf("%w: only terminal batches are recorded", domain.ErrValidation)
	}

	model := BatchHistoryModel{
		ID:       record.BatchID,
		Status:   record.Status,
		QueuedAt: time.UnixMilli(record.QueuedAt),
	}
	if record.CompletedAt != nil {
		model.CompletedAt = time.UnixMilli(*record.CompletedAt)
	}
	if record.Result != nil {
		model.NewEntriesCount = record.Result.NewEntriesCount
		if record.Result.Error != "" {
			errMsg := record.Result.Error
			model.Error = &errMsg
		}
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model).Error
}
