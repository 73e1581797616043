package models

import (
	"time"

	"github.com/google/uuid"
)

type Invitation struct {
	Base
	OrgID      uuid.UUID  `gorm:"type:uuid;index;not null" json:"org_id"`
	ClientID   *uuid.UUID `gorm:"type:uuid" json:"client_id"`
	Email      string     `gorm:"not null" json:"email"`
	Token      string     `gorm:"uniqueIndex;not null" json:"-"`
	Role       string     `gorm:"not null" json:"role"`
	ExpiresAt  time.Time  `gorm:"index;not null" json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at"`
	InvitedBy  uuid.UUID  `gorm:"type:uuid" json:"invited_by"`
}

func (Invitation) TableName() string {
	return TableInvitations
}

// Expired reports whether the invitation can no longer be accepted.
func (i *Invitation) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}
