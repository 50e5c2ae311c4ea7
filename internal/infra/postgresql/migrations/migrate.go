package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/feedworks/refresh-engine/internal/repository"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_feeds",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.FeedModel{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_feeds_last_fetched_at ON feeds (last_fetched_at NULLS FIRST)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.FeedModel{})
			},
		},
		{
			ID: "000002_create_batch_history",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.BatchHistoryModel{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_batch_history_created_at ON batch_history (created_at)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.BatchHistoryModel{})
			},
		},
	})

	return m.Migrate()
}
