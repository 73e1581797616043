package models

import "github.com/google/uuid"

type Organization struct {
	Base
	Name    string    `gorm:"not null" json:"name"`
	Slug    string    `gorm:"uniqueIndex;not null" json:"slug"`
	OwnerID uuid.UUID `gorm:"type:uuid;index;not null" json:"owner_id"`
}

func (Organization) TableName() string {
	return TableOrganizations
}

const (
	MemberStatusActive  = "active"
	MemberStatusPending = "pending"
)

type Member struct {
	Base
	OrgID  uuid.UUID `gorm:"type:uuid;index:idx_member_org_user;not null" json:"org_id"`
	UserID uuid.UUID `gorm:"type:uuid;index:idx_member_org_user;not null" json:"user_id"`
	Email  string    `json:"email"`
	Role   string    `gorm:"not null;default:'client'" json:"role"`
	Status string    `gorm:"not null;default:'active'" json:"status"`
}

func (Member) TableName() string {
	return TableMembers
}

// ClientAccess links a client-role user to the clients they may see.
type ClientAccess struct {
	Base
	OrgID    uuid.UUID `gorm:"type:uuid;index;not null" json:"org_id"`
	ClientID uuid.UUID `gorm:"type:uuid;index;not null" json:"client_id"`
	UserID   uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
}

func (ClientAccess) TableName() string {
	return TableClientAccess
}
