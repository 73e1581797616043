// Package session resolves who is calling, in which organization, with which role.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hugh/agencydesk/internal/ability"
	"github.com/hugh/agencydesk/internal/database/models"
	"gorm.io/gorm"
)

// ErrLookupFailed means a query failed. It is never returned for missing rows,
// so an outage cannot pass for an unprovisioned user.
var ErrLookupFailed = errors.New("session: lookup failed")

// Scope is the organization and role a session acts in.
type Scope struct {
	OrgID uuid.UUID
	Role  string
}

// ResolveContext applies the resolution precedence: an active membership wins,
// then an owned organization, else the user is a guest.
// A nil ownerOrgID (uuid.Nil) means the user owns nothing.
func ResolveContext(member *models.Member, ownerOrgID uuid.UUID) Scope {
	if member != nil {
		return Scope{OrgID: member.OrgID, Role: member.Role}
	}
	if ownerOrgID != uuid.Nil {
		return Scope{OrgID: ownerOrgID, Role: ability.RoleOwner}
	}
	return Scope{Role: ability.RoleGuest}
}

// Context is the resolved session. The zero value is an unauthenticated caller.
type Context struct {
	User            *models.User
	OrgID           uuid.UUID
	Role            string
	LinkedClientIDs []string
}

func (c Context) Authenticated() bool {
	return c.User != nil
}

// Provisioned reports whether the user belongs to an organization.
func (c Context) Provisioned() bool {
	return c.OrgID != uuid.Nil && ability.Valid(c.Role)
}

// Abilities returns the capability set for this session.
func (c Context) Abilities() *ability.Abilities {
	if !c.Provisioned() {
		return ability.For(c.Role, "", nil)
	}
	return ability.For(c.Role, c.OrgID.String(), c.LinkedClientIDs)
}

type Resolver struct {
	db *gorm.DB
}

func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{db: db}
}

// Resolve builds the session for userID. uuid.Nil means no identity and
// yields the zero Context. preferredOrg, when set, pins the session to that
// organization; without it the oldest active membership wins.
func (r *Resolver) Resolve(ctx context.Context, userID, preferredOrg uuid.UUID) (Context, error) {
	if userID == uuid.Nil {
		return Context{}, nil
	}

	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Token outlived the account.
			return Context{}, nil
		}
		return Context{}, fmt.Errorf("%w: user: %v", ErrLookupFailed, err)
	}

	// An org the user cannot reach resolves to guest, never to another org.
	scope, err := r.scope(ctx, userID, preferredOrg)
	if err != nil {
		return Context{}, err
	}

	sc := Context{User: &user, OrgID: scope.OrgID, Role: scope.Role}
	if sc.Role == ability.RoleClient {
		sc.LinkedClientIDs, err = r.linkedClients(ctx, userID, scope.OrgID)
		if err != nil {
			return Context{}, err
		}
	}
	return sc, nil
}

func (r *Resolver) scope(ctx context.Context, userID, preferredOrg uuid.UUID) (Scope, error) {
	member, err := r.activeMembership(ctx, userID, preferredOrg)
	if err != nil {
		return Scope{}, err
	}
	if member != nil {
		return ResolveContext(member, uuid.Nil), nil
	}

	ownerOrgID, err := r.ownedOrg(ctx, userID, preferredOrg)
	if err != nil {
		return Scope{}, err
	}
	return ResolveContext(nil, ownerOrgID), nil
}

func (r *Resolver) activeMembership(ctx context.Context, userID, orgID uuid.UUID) (*models.Member, error) {
	q := r.db.WithContext(ctx).Where("user_id = ? AND status = ?", userID, models.MemberStatusActive)
	if orgID != uuid.Nil {
		q = q.Where("org_id = ?", orgID)
	}

	var m models.Member
	err := q.Order("created_at ASC").First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: membership: %v", ErrLookupFailed, err)
	}
	return &m, nil
}

func (r *Resolver) ownedOrg(ctx context.Context, userID, orgID uuid.UUID) (uuid.UUID, error) {
	q := r.db.WithContext(ctx).Where("owner_id = ?", userID)
	if orgID != uuid.Nil {
		q = q.Where("id = ?", orgID)
	}

	var org models.Organization
	err := q.Order("created_at ASC").First(&org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: organization: %v", ErrLookupFailed, err)
	}
	return org.ID, nil
}

func (r *Resolver) linkedClients(ctx context.Context, userID, orgID uuid.UUID) ([]string, error) {
	var links []models.ClientAccess
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND org_id = ?", userID, orgID).
		Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("%w: client access: %v", ErrLookupFailed, err)
	}
	ids := make([]string, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.ClientID.String())
	}
	return ids, nil
}
