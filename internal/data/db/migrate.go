package db

import (
	"gorm.io/gorm"

	"github.com/luxcrm/relay/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(

		// =========================
		// Ingest + evidence
		// =========================
		&domain.RawEvent{},
		&domain.Interaction{},
		&domain.Chunk{},
		&domain.Embedding{},

		// =========================
		// Registry mirror
		// =========================
		&domain.Contact{},

		// =========================
		// Drafting + adjudication
		// =========================
		&domain.Draft{},
		&domain.ResolutionTask{},

		// =========================
		// Scoring
		// =========================
		&domain.ScoreSnapshot{},
	)
}
