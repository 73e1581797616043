package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/hugh/agencydesk/internal/database/models"
	"github.com/hugh/agencydesk/internal/realtime"
)

func (r *Repository) ListMedia(ctx context.Context, orgID, clientID uuid.UUID, folder string) ([]models.MediaItem, error) {
	query := r.db.WithContext(ctx).Where("org_id = ? AND client_id = ?", orgID, clientID)
	if folder != "" {
		query = query.Where("folder = ?", folder)
	}

	var items []models.MediaItem
	if err := query.Order("created_at DESC").Find(&items).Error; err != nil {
		return nil, wrap("listing media", err)
	}
	return items, nil
}

func (r *Repository) GetMedia(ctx context.Context, orgID, id uuid.UUID) (*models.MediaItem, error) {
	var m models.MediaItem
	if err := r.db.WithContext(ctx).Where("id = ? AND org_id = ?", id, orgID).First(&m).Error; err != nil {
		return nil, wrap("media", err)
	}
	return &m, nil
}

func (r *Repository) CreateMedia(ctx context.Context, m *models.MediaItem) error {
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return wrap("creating media", err)
	}
	r.publish(ctx, models.TableMedia, m.OrgID, realtime.EventInsert, m, nil)
	return nil
}

func (r *Repository) DeleteMedia(ctx context.Context, orgID, id uuid.UUID) (*models.MediaItem, error) {
	m, err := r.GetMedia(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Unscoped().Delete(m).Error; err != nil {
		return nil, wrap("deleting media", err)
	}
	r.publish(ctx, models.TableMedia, orgID, realtime.EventDelete, nil, m)
	return m, nil
}

// ClientMediaPaths lists stored object paths of a client, including rows of
// a client that was already deleted.
func (r *Repository) ClientMediaPaths(ctx context.Context, orgID, clientID uuid.UUID) ([]string, error) {
	var paths []string
	err := r.db.WithContext(ctx).Unscoped().Model(&models.MediaItem{}).
		Where("org_id = ? AND client_id = ?", orgID, clientID).
		Pluck("path", &paths).Error
	if err != nil {
		return nil, wrap("listing media paths", err)
	}
	return paths, nil
}

// PurgeClientMedia hard-deletes every media row of a client and returns how many were removed.
func (r *Repository) PurgeClientMedia(ctx context.Context, orgID, clientID uuid.UUID) (int64, error) {
	var items []models.MediaItem
	if err := r.db.WithContext(ctx).Unscoped().
		Where("org_id = ? AND client_id = ?", orgID, clientID).
		Find(&items).Error; err != nil {
		return 0, wrap("purging media", err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	res := r.db.WithContext(ctx).Unscoped().
		Where("org_id = ? AND client_id = ?", orgID, clientID).
		Delete(&models.MediaItem{})
	if res.Error != nil {
		return 0, wrap("purging media", res.Error)
	}
	for i := range items {
		r.publish(ctx, models.TableMedia, orgID, realtime.EventDelete, nil, &items[i])
	}
	return res.RowsAffected, nil
}
