package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ClientStatusNew        = "new"
	ClientStatusOnboarding = "onboarding"
	ClientStatusActive     = "active"
	ClientStatusPaused     = "paused"
	ClientStatusClosed     = "closed"
)

type Client struct {
	Base
	OrgID        uuid.UUID `gorm:"type:uuid;index;not null" json:"org_id"`
	Name         string    `gorm:"not null" json:"name"`
	Email        string    `json:"email"`
	Status       string    `gorm:"not null;default:'new'" json:"status"`
	Plan         string    `json:"plan"`
	Progress     int       `gorm:"default:0" json:"progress"`
	BillingEmail string    `json:"billing_email"`
	BillingCycle string    `json:"billing_cycle"`

	// age-encrypted billing details, only ever returned decrypted to owners
	BillingEncrypted string `gorm:"type:text" json:"-"`
}

func (Client) TableName() string {
	return TableClients
}

const (
	TaskStatusPending    = "pending"
	TaskStatusInProgress = "in_progress"
	TaskStatusDone       = "done"
)

const (
	UrgencyLow      = "low"
	UrgencyNormal   = "normal"
	UrgencyHigh     = "high"
	UrgencyCritical = "critical"
)

type Task struct {
	Base
	OrgID    uuid.UUID  `gorm:"type:uuid;index;not null" json:"org_id"`
	ClientID uuid.UUID  `gorm:"type:uuid;index;not null" json:"client_id"`
	Title    string     `gorm:"not null" json:"title"`
	Status   string     `gorm:"not null;default:'pending'" json:"status"`
	Urgency  string     `gorm:"not null;default:'normal'" json:"urgency"`
	DueDate  *time.Time `json:"due_date"`
}

func (Task) TableName() string {
	return TableTasks
}

type CalendarEvent struct {
	Base
	OrgID    uuid.UUID  `gorm:"type:uuid;index;not null" json:"org_id"`
	ClientID *uuid.UUID `gorm:"type:uuid;index" json:"client_id"`
	Date     time.Time  `gorm:"index;not null" json:"date"`
	Title    string     `gorm:"not null" json:"title"`
	Channel  string     `json:"channel"`
	Notes    string     `gorm:"type:text" json:"notes"`
}

func (CalendarEvent) TableName() string {
	return TableCalendarEvents
}

type MediaItem struct {
	Base
	OrgID       uuid.UUID `gorm:"type:uuid;index;not null" json:"org_id"`
	ClientID    uuid.UUID `gorm:"type:uuid;index;not null" json:"client_id"`
	Path        string    `gorm:"not null" json:"path"`
	Filename    string    `gorm:"not null" json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Folder      string    `json:"folder"`
	Subfolder   string    `json:"subfolder"`
}

func (MediaItem) TableName() string {
	return TableMedia
}
