package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/hugh/agencydesk/internal/database/models"
	"github.com/hugh/agencydesk/internal/realtime"
)

func (r *Repository) ListMembers(ctx context.Context, orgID uuid.UUID) ([]models.Member, error) {
	var members []models.Member
	err := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, wrap("listing members", err)
	}
	return members, nil
}

func (r *Repository) GetMember(ctx context.Context, orgID, id uuid.UUID) (*models.Member, error) {
	var m models.Member
	if err := r.db.WithContext(ctx).Where("id = ? AND org_id = ?", id, orgID).First(&m).Error; err != nil {
		return nil, wrap("member", err)
	}
	return &m, nil
}

type MemberUpdate struct {
	Role   *string
	Status *string
}

// UpdateMember changes a member's role or status. The owner's own
// membership is immutable.
func (r *Repository) UpdateMember(ctx context.Context, orgID, id uuid.UUID, upd MemberUpdate) (*models.Member, error) {
	m, err := r.GetMember(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	org, err := r.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if m.UserID == org.OwnerID {
		return nil, ErrOwnerImmutable
	}

	old := *m
	updates := map[string]any{}
	if upd.Role != nil {
		updates["role"] = *upd.Role
	}
	if upd.Status != nil {
		updates["status"] = *upd.Status
	}
	if len(updates) == 0 {
		return m, nil
	}

	if err := r.db.WithContext(ctx).Model(m).Updates(updates).Error; err != nil {
		return nil, wrap("updating member", err)
	}
	if m, err = r.GetMember(ctx, orgID, id); err != nil {
		return nil, err
	}

	r.publish(ctx, models.TableMembers, orgID, realtime.EventUpdate, m, &old)
	return m, nil
}
