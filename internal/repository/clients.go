package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/hugh/agencydesk/internal/database/models"
	"github.com/hugh/agencydesk/internal/realtime"
	"gorm.io/gorm"
)

type ClientFilter struct {
	Status string
	// Restrict limits results to these ids when Restricted is set,
	// even if empty.
	Restrict   []uuid.UUID
	Restricted bool
	Limit      int
	Offset     int
}

func (r *Repository) ListClients(ctx context.Context, orgID uuid.UUID, f ClientFilter) ([]models.Client, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Client{}).Where("org_id = ?", orgID)
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.Restricted {
		if len(f.Restrict) == 0 {
			return []models.Client{}, 0, nil
		}
		query = query.Where("id IN ?", f.Restrict)
	}

	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, wrap("counting clients", err)
	}

	var clients []models.Client
	q := query.Order("created_at DESC").Offset(f.Offset)
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if err := q.Find(&clients).Error; err != nil {
		return nil, 0, wrap("listing clients", err)
	}
	return clients, total, nil
}

func (r *Repository) GetClient(ctx context.Context, orgID, id uuid.UUID) (*models.Client, error) {
	var c models.Client
	if err := r.db.WithContext(ctx).Where("id = ? AND org_id = ?", id, orgID).First(&c).Error; err != nil {
		return nil, wrap("client", err)
	}
	return &c, nil
}

func (r *Repository) CreateClient(ctx context.Context, c *models.Client) error {
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return wrap("creating client", err)
	}
	r.publish(ctx, models.TableClients, c.OrgID, realtime.EventInsert, c, nil)
	return nil
}

// UpdateClient applies column updates and returns the stored row.
func (r *Repository) UpdateClient(ctx context.Context, orgID, id uuid.UUID, updates map[string]any) (*models.Client, error) {
	old, err := r.GetClient(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return old, nil
	}

	if err := r.db.WithContext(ctx).Model(&models.Client{}).
		Where("id = ? AND org_id = ?", id, orgID).
		Updates(updates).Error; err != nil {
		return nil, wrap("updating client", err)
	}

	c, err := r.GetClient(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	r.publish(ctx, models.TableClients, orgID, realtime.EventUpdate, c, old)
	return c, nil
}

// DeleteClient removes a client with its tasks and access links. Media rows
// and stored objects are purged separately.
func (r *Repository) DeleteClient(ctx context.Context, orgID, id uuid.UUID) (*models.Client, error) {
	c, err := r.GetClient(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	var tasks []models.Task
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("org_id = ? AND client_id = ?", orgID, id).Find(&tasks).Error; err != nil {
			return err
		}
		if err := tx.Where("org_id = ? AND client_id = ?", orgID, id).Delete(&models.Task{}).Error; err != nil {
			return err
		}
		if err := tx.Where("org_id = ? AND client_id = ?", orgID, id).Delete(&models.ClientAccess{}).Error; err != nil {
			return err
		}
		return tx.Delete(c).Error
	})
	if err != nil {
		return nil, wrap("deleting client", err)
	}

	for i := range tasks {
		r.publish(ctx, models.TableTasks, orgID, realtime.EventDelete, nil, &tasks[i])
	}
	r.publish(ctx, models.TableClients, orgID, realtime.EventDelete, nil, c)
	return c, nil
}

// LinkClient gives a client-role user access to a client. Linking twice is a no-op.
func (r *Repository) LinkClient(ctx context.Context, orgID, clientID, userID uuid.UUID) error {
	link := models.ClientAccess{OrgID: orgID, ClientID: clientID, UserID: userID}
	err := r.db.WithContext(ctx).
		Where(models.ClientAccess{OrgID: orgID, ClientID: clientID, UserID: userID}).
		FirstOrCreate(&link).Error
	return wrap("linking client", err)
}

// ClientsWithBilling pages through clients of every org that carry billing
// ciphertext, ordered by id and starting after the given id.
func (r *Repository) ClientsWithBilling(ctx context.Context, after uuid.UUID, limit int) ([]models.Client, error) {
	query := r.db.WithContext(ctx).
		Where("billing_encrypted <> ''").
		Order("id").
		Limit(limit)
	if after != uuid.Nil {
		query = query.Where("id > ?", after)
	}

	var clients []models.Client
	if err := query.Find(&clients).Error; err != nil {
		return nil, wrap("listing billed clients", err)
	}
	return clients, nil
}

// SetClientBilling replaces the stored ciphertext. Mirrors are not notified:
// the column never leaves the server.
func (r *Repository) SetClientBilling(ctx context.Context, id uuid.UUID, ciphertext string) error {
	res := r.db.WithContext(ctx).Model(&models.Client{}).Where("id = ?", id).Update("billing_encrypted", ciphertext)
	if res.Error != nil {
		return wrap("updating client billing", res.Error)
	}
	if res.RowsAffected == 0 {
		return wrap("client", gorm.ErrRecordNotFound)
	}
	return nil
}
