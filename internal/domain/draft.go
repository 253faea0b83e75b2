package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	DraftStatusProposed  = "proposed"
	DraftStatusApproved  = "approved"
	DraftStatusEdited    = "edited"
	DraftStatusDiscarded = "discarded"
)

type Draft struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"draft_id"`
	ContactID string         `gorm:"column:contact_id;size:128;not null;index" json:"contact_id"`
	CreatedAt time.Time      `gorm:"column:created_at;not null;default:now()" json:"created_at"`
	Prompt    datatypes.JSON `gorm:"type:jsonb;column:prompt_json;not null" json:"prompt_json"`
	Subject   string         `gorm:"column:subject;size:200" json:"subject"`
	DraftText string         `gorm:"column:draft_text;type:text;not null" json:"draft_text"`
	Citations datatypes.JSON `gorm:"type:jsonb;column:citations_json;not null" json:"citations_json"`
	ToneBand  string         `gorm:"column:tone_band;size:64;not null" json:"tone_band"`
	Status    string         `gorm:"column:status;size:32;not null;default:proposed" json:"status"`
}

func (Draft) TableName() string { return "drafts" }

// Citation ties one draft paragraph back to the evidence chunk it leans on.
type Citation struct {
	Paragraph     int            `json:"paragraph"`
	InteractionID string         `json:"interaction_id"`
	ChunkID       string         `json:"chunk_id"`
	Span          map[string]any `json:"span_json"`
	Snippet       string         `json:"snippet"`
}
