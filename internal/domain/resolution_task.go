package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	TaskStatusOpen      = "open"
	TaskStatusResolved  = "resolved"
	TaskStatusDismissed = "dismissed"

	TaskTypeIdentityResolution     = "identity_resolution"
	TaskTypeEmploymentDiscrepancy  = "employment_discrepancy"
	TaskTypeOpportunityDiscrepancy = "opportunity_discrepancy"
	TaskTypeCommitmentDiscrepancy  = "commitment_discrepancy"
	TaskTypePersonalDetailConflict = "personal_detail_conflict"
	TaskTypePreferenceConflict     = "preference_conflict"
	TaskTypeGraphRelationReview    = "graph_relation_review"
)

// ResolutionTask is open state to adjudicate, never an error: identity
// ambiguity, claim contradictions, uncertain graph relations.
type ResolutionTask struct {
	ID              uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"task_id"`
	ContactID       string         `gorm:"column:contact_id;size:128;not null;index" json:"contact_id"`
	TaskType        string         `gorm:"column:task_type;size:64;not null;index" json:"task_type"`
	ProposedClaimID string         `gorm:"column:proposed_claim_id;size:64;not null" json:"proposed_claim_id"`
	CurrentClaimID  string         `gorm:"column:current_claim_id;size:64" json:"current_claim_id,omitempty"`
	SubjectKey      string         `gorm:"column:subject_key;size:320;index" json:"subject_key,omitempty"`
	Payload         datatypes.JSON `gorm:"type:jsonb;column:payload_json;not null" json:"payload_json"`
	Status          string         `gorm:"column:status;size:32;not null;default:open;index" json:"status"`
	Resolution      datatypes.JSON `gorm:"type:jsonb;column:resolution_json" json:"resolution_json,omitempty"`
	CreatedAt       time.Time      `gorm:"column:created_at;not null;default:now()" json:"created_at"`
	ResolvedAt      *time.Time     `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
}

func (ResolutionTask) TableName() string { return "resolution_tasks" }
