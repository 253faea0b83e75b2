package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	InteractionTypeEmail   = "email"
	InteractionTypeMeeting = "meeting"
	InteractionTypeNews    = "news"
	InteractionTypeNote    = "note"

	DirectionIn  = "in"
	DirectionOut = "out"
	DirectionNA  = "na"

	InteractionStatusNew       = "new"
	InteractionStatusProcessed = "processed"
	InteractionStatusError     = "error"
)

type Interaction struct {
	ID           uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"interaction_id"`
	SourceSystem string    `gorm:"column:source_system;size:32;not null;uniqueIndex:uq_interactions_source_external" json:"source_system"`
	ExternalID   string    `gorm:"column:external_id;size:255;not null;uniqueIndex:uq_interactions_source_external" json:"external_id"`
	Type         string    `gorm:"column:type;size:32;not null" json:"type"`
	Timestamp    time.Time `gorm:"column:timestamp;not null;index" json:"timestamp"`
	Direction    string    `gorm:"column:direction;size:8;not null;default:na" json:"direction"`
	Subject      string    `gorm:"column:subject;size:500" json:"subject"`
	ThreadID     string    `gorm:"column:thread_id;size:255;index" json:"thread_id"`
	// Participants holds {"from":[...],"to":[...],"cc":[...]} address lists.
	Participants datatypes.JSON `gorm:"type:jsonb;column:participants_json;not null" json:"participants_json"`
	// ContactIDs is filled by the processor after registry resolution.
	ContactIDs      datatypes.JSON `gorm:"type:jsonb;column:contact_ids_json" json:"contact_ids_json"`
	Status          string         `gorm:"column:status;size:32;not null;default:new" json:"status"`
	ProcessingError string         `gorm:"column:processing_error;type:text" json:"processing_error,omitempty"`
}

func (Interaction) TableName() string { return "interactions" }

// Participant is one address in the participants payload.
type Participant struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// ParticipantSet mirrors the participants_json shape.
type ParticipantSet struct {
	From []Participant `json:"from"`
	To   []Participant `json:"to"`
	CC   []Participant `json:"cc"`
}
