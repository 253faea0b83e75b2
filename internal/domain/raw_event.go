package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// RawEvent is the immutable ingest record. Uniqueness on
// (source_system, external_id) is what makes webhook ingest idempotent.
type RawEvent struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SourceSystem string         `gorm:"column:source_system;size:32;not null;uniqueIndex:uq_raw_events_source_external" json:"source_system"`
	EventType    string         `gorm:"column:event_type;size:64;not null" json:"event_type"`
	ExternalID   string         `gorm:"column:external_id;size:255;not null;uniqueIndex:uq_raw_events_source_external" json:"external_id"`
	Payload      datatypes.JSON `gorm:"type:jsonb;column:payload_json;not null" json:"payload_json"`
	ReceivedAt   time.Time      `gorm:"column:received_at;not null;default:now()" json:"received_at"`
}

func (RawEvent) TableName() string { return "raw_events" }
