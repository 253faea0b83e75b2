package domain

import (
	"time"
)

// Contact mirrors the contacts registry. The registry sync owns these rows;
// contact ids are registry-assigned strings, not local uuids.
type Contact struct {
	ContactID            string    `gorm:"column:contact_id;size:128;primaryKey" json:"contact_id"`
	PrimaryEmail         string    `gorm:"column:primary_email;size:320;not null;uniqueIndex" json:"primary_email"`
	DisplayName          string    `gorm:"column:display_name;size:255" json:"display_name"`
	Company              string    `gorm:"column:company;size:255" json:"company,omitempty"`
	OwnerUserID          string    `gorm:"column:owner_user_id;size:64" json:"owner_user_id,omitempty"`
	UseSensitiveInDrafts bool      `gorm:"column:use_sensitive_in_drafts;not null;default:false" json:"use_sensitive_in_drafts"`
	UpdatedAt            time.Time `gorm:"column:updated_at;not null;default:now()" json:"updated_at"`
}

func (Contact) TableName() string { return "contact_cache" }
