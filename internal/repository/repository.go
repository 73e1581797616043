// Package repository holds the org-scoped queries behind every handler.
// Each mutation publishes a realtime change once the write has committed.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/agencydesk/internal/realtime"
	"gorm.io/gorm"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrOwnerImmutable     = errors.New("the organization owner's membership cannot be changed")
	ErrInvitationUsed     = errors.New("invitation already accepted")
	ErrInvitationExpired  = errors.New("invitation expired")
	ErrInvitationMismatch = errors.New("invitation was issued to a different email")
	ErrAlreadyMember      = errors.New("already a member of this organization")
	ErrAlreadyProvisioned = errors.New("user already belongs to an organization")
)

type Repository struct {
	db  *gorm.DB
	pub realtime.Publisher
	log *slog.Logger
}

// New creates a repository. pub may be nil to skip change publication.
func New(db *gorm.DB, pub realtime.Publisher, log *slog.Logger) *Repository {
	return &Repository{db: db, pub: pub, log: log}
}

func (r *Repository) DB() *gorm.DB {
	return r.db
}

// wrap translates gorm.ErrRecordNotFound into ErrNotFound, keeping both in the chain.
func wrap(entity string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w: %w", entity, ErrNotFound, err)
	}
	return fmt.Errorf("%s: %w", entity, err)
}

// publish reports a committed write. Failures are logged and never fail the write.
func (r *Repository) publish(ctx context.Context, table string, orgID uuid.UUID, typ realtime.EventType, newV, oldV any) {
	if r.pub == nil {
		return
	}
	c, err := realtime.NewChange(table, orgID.String(), typ, newV, oldV)
	if err != nil {
		r.log.Warn("encoding change failed", "table", table, "type", typ, "error", err)
		return
	}
	if err := r.pub.Publish(context.WithoutCancel(ctx), c); err != nil {
		r.log.Warn("publishing change failed", "table", table, "type", typ, "org_id", orgID, "error", err)
	}
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(name string) string {
	slug := slugInvalid.ReplaceAllString(strings.ToLower(name), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "org"
	}
	return slug + "-" + uuid.New().String()[:8]
}
