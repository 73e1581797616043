package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/hugh/agencydesk/internal/database/models"
	"github.com/hugh/agencydesk/internal/realtime"
)

func (r *Repository) ListTasks(ctx context.Context, orgID, clientID uuid.UUID, status string) ([]models.Task, error) {
	query := r.db.WithContext(ctx).Where("org_id = ? AND client_id = ?", orgID, clientID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var tasks []models.Task
	if err := query.Order("due_date IS NULL, due_date ASC, created_at ASC").Find(&tasks).Error; err != nil {
		return nil, wrap("listing tasks", err)
	}
	return tasks, nil
}

func (r *Repository) GetTask(ctx context.Context, orgID, id uuid.UUID) (*models.Task, error) {
	var t models.Task
	if err := r.db.WithContext(ctx).Where("id = ? AND org_id = ?", id, orgID).First(&t).Error; err != nil {
		return nil, wrap("task", err)
	}
	return &t, nil
}

func (r *Repository) CreateTask(ctx context.Context, t *models.Task) error {
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return wrap("creating task", err)
	}
	r.publish(ctx, models.TableTasks, t.OrgID, realtime.EventInsert, t, nil)
	return nil
}

func (r *Repository) UpdateTask(ctx context.Context, orgID, id uuid.UUID, updates map[string]any) (*models.Task, error) {
	old, err := r.GetTask(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return old, nil
	}

	if err := r.db.WithContext(ctx).Model(&models.Task{}).
		Where("id = ? AND org_id = ?", id, orgID).
		Updates(updates).Error; err != nil {
		return nil, wrap("updating task", err)
	}

	t, err := r.GetTask(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	r.publish(ctx, models.TableTasks, orgID, realtime.EventUpdate, t, old)
	return t, nil
}

func (r *Repository) DeleteTask(ctx context.Context, orgID, id uuid.UUID) error {
	t, err := r.GetTask(ctx, orgID, id)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Delete(t).Error; err != nil {
		return wrap("deleting task", err)
	}
	r.publish(ctx, models.TableTasks, orgID, realtime.EventDelete, nil, t)
	return nil
}
