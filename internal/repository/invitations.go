package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/agencydesk/internal/ability"
	"github.com/hugh/agencydesk/internal/database/models"
	"github.com/hugh/agencydesk/internal/realtime"
	"github.com/hugh/agencydesk/pkg/crypto"
	"gorm.io/gorm"
)

const invitationTokenBytes = 32

// ListInvitations returns invitations that have not been accepted yet.
func (r *Repository) ListInvitations(ctx context.Context, orgID uuid.UUID) ([]models.Invitation, error) {
	var invs []models.Invitation
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND accepted_at IS NULL", orgID).
		Order("created_at DESC").
		Find(&invs).Error
	if err != nil {
		return nil, wrap("listing invitations", err)
	}
	return invs, nil
}

func (r *Repository) GetInvitation(ctx context.Context, orgID, id uuid.UUID) (*models.Invitation, error) {
	var inv models.Invitation
	if err := r.db.WithContext(ctx).Where("id = ? AND org_id = ?", id, orgID).First(&inv).Error; err != nil {
		return nil, wrap("invitation", err)
	}
	return &inv, nil
}

// CreateInvitation issues a fresh token and stores the invitation. A pending
// invitation for the same email in the org is a conflict.
func (r *Repository) CreateInvitation(ctx context.Context, inv *models.Invitation) error {
	inv.Email = strings.ToLower(strings.TrimSpace(inv.Email))

	var pending int64
	err := r.db.WithContext(ctx).Model(&models.Invitation{}).
		Where("org_id = ? AND email = ? AND accepted_at IS NULL AND expires_at > ?", inv.OrgID, inv.Email, time.Now()).
		Count(&pending).Error
	if err != nil {
		return wrap("checking invitations", err)
	}
	if pending > 0 {
		return wrap("creating invitation", ErrConflict)
	}

	token, err := crypto.GenerateToken(invitationTokenBytes)
	if err != nil {
		return err
	}
	inv.Token = token

	if err := r.db.WithContext(ctx).Create(inv).Error; err != nil {
		return wrap("creating invitation", err)
	}
	r.publish(ctx, models.TableInvitations, inv.OrgID, realtime.EventInsert, inv, nil)
	return nil
}

func (r *Repository) DeleteInvitation(ctx context.Context, orgID, id uuid.UUID) error {
	inv, err := r.GetInvitation(ctx, orgID, id)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Unscoped().Delete(inv).Error; err != nil {
		return wrap("deleting invitation", err)
	}
	r.publish(ctx, models.TableInvitations, orgID, realtime.EventDelete, nil, inv)
	return nil
}

// AcceptInvitation turns an invitation into an active membership for user,
// linking the invited client when one is set.
func (r *Repository) AcceptInvitation(ctx context.Context, token string, user *models.User, now time.Time) (*models.Member, error) {
	var (
		inv    models.Invitation
		member models.Member
		link   *models.ClientAccess

		memberEvent = realtime.EventInsert
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("token = ?", token).First(&inv).Error; err != nil {
			return err
		}
		switch {
		case inv.AcceptedAt != nil:
			return ErrInvitationUsed
		case inv.Expired(now):
			return ErrInvitationExpired
		case !strings.EqualFold(inv.Email, user.Email):
			return ErrInvitationMismatch
		}

		err := tx.Where("org_id = ? AND user_id = ?", inv.OrgID, user.ID).First(&member).Error
		switch {
		case err == nil && member.Status == models.MemberStatusActive:
			return ErrAlreadyMember
		case err == nil:
			memberEvent = realtime.EventUpdate
			member.Role = inv.Role
			member.Status = models.MemberStatusActive
			if err := tx.Save(&member).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			member = models.Member{
				OrgID:  inv.OrgID,
				UserID: user.ID,
				Email:  user.Email,
				Role:   inv.Role,
				Status: models.MemberStatusActive,
			}
			if err := tx.Create(&member).Error; err != nil {
				return err
			}
		default:
			return err
		}

		if inv.ClientID != nil && inv.Role == ability.RoleClient {
			link = &models.ClientAccess{OrgID: inv.OrgID, ClientID: *inv.ClientID, UserID: user.ID}
			if err := tx.Create(link).Error; err != nil {
				return err
			}
		}

		inv.AcceptedAt = &now
		return tx.Model(&inv).Update("accepted_at", now).Error
	})
	if err != nil {
		return nil, wrap("accepting invitation", err)
	}

	r.publish(ctx, models.TableMembers, inv.OrgID, memberEvent, &member, nil)
	r.publish(ctx, models.TableInvitations, inv.OrgID, realtime.EventUpdate, &inv, nil)
	if link != nil {
		r.publish(ctx, models.TableClientAccess, inv.OrgID, realtime.EventInsert, link, nil)
	}
	return &member, nil
}

// SweepExpiredInvitations deletes unaccepted invitations past their expiry.
func (r *Repository) SweepExpiredInvitations(ctx context.Context, now time.Time) (int, error) {
	var expired []models.Invitation
	err := r.db.WithContext(ctx).
		Where("accepted_at IS NULL AND expires_at <= ?", now).
		Find(&expired).Error
	if err != nil {
		return 0, wrap("finding expired invitations", err)
	}

	for i := range expired {
		inv := &expired[i]
		if err := r.db.WithContext(ctx).Unscoped().Delete(inv).Error; err != nil {
			return i, wrap("deleting expired invitation", err)
		}
		r.publish(ctx, models.TableInvitations, inv.OrgID, realtime.EventDelete, nil, inv)
	}
	return len(expired), nil
}
