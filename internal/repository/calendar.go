package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/agencydesk/internal/database/models"
	"github.com/hugh/agencydesk/internal/realtime"
)

type EventFilter struct {
	From *time.Time
	To   *time.Time
	// Restrict limits results to events of these clients when Restricted is set.
	Restrict   []uuid.UUID
	Restricted bool
}

func (r *Repository) ListEvents(ctx context.Context, orgID uuid.UUID, f EventFilter) ([]models.CalendarEvent, error) {
	query := r.db.WithContext(ctx).Where("org_id = ?", orgID)
	if f.From != nil {
		query = query.Where("date >= ?", *f.From)
	}
	if f.To != nil {
		query = query.Where("date < ?", *f.To)
	}
	if f.Restricted {
		if len(f.Restrict) == 0 {
			return []models.CalendarEvent{}, nil
		}
		query = query.Where("client_id IN ?", f.Restrict)
	}

	var events []models.CalendarEvent
	if err := query.Order("date ASC").Find(&events).Error; err != nil {
		return nil, wrap("listing calendar events", err)
	}
	return events, nil
}

func (r *Repository) GetEvent(ctx context.Context, orgID, id uuid.UUID) (*models.CalendarEvent, error) {
	var e models.CalendarEvent
	if err := r.db.WithContext(ctx).Where("id = ? AND org_id = ?", id, orgID).First(&e).Error; err != nil {
		return nil, wrap("calendar event", err)
	}
	return &e, nil
}

func (r *Repository) CreateEvent(ctx context.Context, e *models.CalendarEvent) error {
	if err := r.db.WithContext(ctx).Create(e).Error; err != nil {
		return wrap("creating calendar event", err)
	}
	r.publish(ctx, models.TableCalendarEvents, e.OrgID, realtime.EventInsert, e, nil)
	return nil
}

func (r *Repository) UpdateEvent(ctx context.Context, orgID, id uuid.UUID, updates map[string]any) (*models.CalendarEvent, error) {
	old, err := r.GetEvent(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return old, nil
	}

	if err := r.db.WithContext(ctx).Model(&models.CalendarEvent{}).
		Where("id = ? AND org_id = ?", id, orgID).
		Updates(updates).Error; err != nil {
		return nil, wrap("updating calendar event", err)
	}

	e, err := r.GetEvent(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	r.publish(ctx, models.TableCalendarEvents, orgID, realtime.EventUpdate, e, old)
	return e, nil
}

func (r *Repository) DeleteEvent(ctx context.Context, orgID, id uuid.UUID) error {
	e, err := r.GetEvent(ctx, orgID, id)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Delete(e).Error; err != nil {
		return wrap("deleting calendar event", err)
	}
	r.publish(ctx, models.TableCalendarEvents, orgID, realtime.EventDelete, nil, e)
	return nil
}
