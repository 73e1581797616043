package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/agencydesk/internal/ability"
	"github.com/hugh/agencydesk/internal/database/models"
	"github.com/hugh/agencydesk/internal/realtime"
	"gorm.io/gorm"
)

// CreateOrganization creates an organization owned by user together with the
// owner's active membership. Users that already belong somewhere are refused.
func (r *Repository) CreateOrganization(ctx context.Context, owner *models.User, name string) (*models.Organization, *models.Member, error) {
	org := &models.Organization{
		Name:    strings.TrimSpace(name),
		Slug:    slugify(name),
		OwnerID: owner.ID,
	}
	member := &models.Member{
		UserID: owner.ID,
		Email:  owner.Email,
		Role:   ability.RoleOwner,
		Status: models.MemberStatusActive,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Member
		err := tx.Where("user_id = ? AND status = ?", owner.ID, models.MemberStatusActive).First(&existing).Error
		if err == nil {
			return ErrAlreadyProvisioned
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := tx.Create(org).Error; err != nil {
			return err
		}
		member.OrgID = org.ID
		return tx.Create(member).Error
	})
	if err != nil {
		return nil, nil, wrap("creating organization", err)
	}

	r.publish(ctx, models.TableMembers, org.ID, realtime.EventInsert, member, nil)
	return org, member, nil
}

func (r *Repository) GetOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	var org models.Organization
	if err := r.db.WithContext(ctx).Where("id = ?", orgID).First(&org).Error; err != nil {
		return nil, wrap("organization", err)
	}
	return &org, nil
}
