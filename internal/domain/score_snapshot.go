package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ScoreSnapshot is the per-contact per-UTC-date scoring record. The unique
// index makes re-runs within a day last-writer-wins instead of appending.
type ScoreSnapshot struct {
	ID                uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ContactID         string         `gorm:"column:contact_id;size:128;not null;uniqueIndex:uq_score_snapshots_contact_asof" json:"contact_id"`
	AsOf              string         `gorm:"column:asof;size:10;not null;uniqueIndex:uq_score_snapshots_contact_asof" json:"asof"`
	RelationshipScore float64        `gorm:"column:relationship_score;not null" json:"relationship_score"`
	PriorityScore     float64        `gorm:"column:priority_score;not null" json:"priority_score"`
	Components        datatypes.JSON `gorm:"type:jsonb;column:components_json;not null" json:"components_json"`
	CreatedAt         time.Time      `gorm:"column:created_at;not null;default:now()" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"column:updated_at;not null;default:now()" json:"updated_at"`
}

func (ScoreSnapshot) TableName() string { return "score_snapshots" }
