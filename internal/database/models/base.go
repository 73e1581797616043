package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with UUID primary key and timestamps
type Base struct {
	ID        uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Table names shared by the repository, the realtime mirror and the worker.
const (
	TableUsers          = "app_users"
	TableOrganizations  = "app_organizations"
	TableMembers        = "app_members"
	TableClients        = "app_clients"
	TableClientAccess   = "app_client_access"
	TableTasks          = "app_tasks"
	TableCalendarEvents = "app_calendar_events"
	TableMedia          = "app_media"
	TableInvitations    = "app_invitations"
)

// All returns every model in migration order.
func All() []any {
	return []any{
		&User{},
		&Organization{},
		&Member{},
		&Client{},
		&ClientAccess{},
		&Task{},
		&CalendarEvent{},
		&MediaItem{},
		&Invitation{},
	}
}
