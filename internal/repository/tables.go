package repository

import (
	"github.com/hugh/agencydesk/internal/database/models"
	"github.com/hugh/agencydesk/internal/realtime"
	"gorm.io/gorm"
)

// MirroredTables are the tables a session mirror hydrates and follows.
var MirroredTables = []string{
	models.TableClients,
	models.TableTasks,
	models.TableCalendarEvents,
	models.TableMedia,
	models.TableMembers,
	models.TableInvitations,
}

// RegisterTables wires a hydration loader for every mirrored table.
func RegisterTables(l *realtime.TableLoader, db *gorm.DB) {
	l.Register(models.TableClients, realtime.ModelLoader[models.Client](db))
	l.Register(models.TableTasks, realtime.ModelLoader[models.Task](db))
	l.Register(models.TableCalendarEvents, realtime.ModelLoader[models.CalendarEvent](db))
	l.Register(models.TableMedia, realtime.ModelLoader[models.MediaItem](db))
	l.Register(models.TableMembers, realtime.ModelLoader[models.Member](db))
	l.Register(models.TableInvitations, realtime.ModelLoader[models.Invitation](db))
}
