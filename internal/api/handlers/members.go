package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hugh/agencydesk/internal/ability"
	"github.com/hugh/agencydesk/internal/api/dto"
	"github.com/hugh/agencydesk/internal/database/models"
	"github.com/hugh/agencydesk/internal/repository"
)

type MemberHandler struct {
	repo   *repository.Repository
	logger *slog.Logger
}

func NewMemberHandler(repo *repository.Repository, logger *slog.Logger) *MemberHandler {
	return &MemberHandler{repo: repo, logger: logger}
}

// List handles GET /api/v1/members
func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	sc, ab := sessionOf(r)
	if !ab.Can(ability.Read, ability.Member) {
		forbidden(w)
		return
	}

	members, err := h.repo.ListMembers(r.Context(), sc.OrgID)
	if err != nil {
		writeRepoError(w, h.logger, "Members", err)
		return
	}
	respond(w, http.StatusOK, members)
}

// Update handles PATCH /api/v1/members/{id}
func (h *MemberHandler) Update(w http.ResponseWriter, r *http.Request) {
	sc, ab := sessionOf(r)
	if !ab.Can(ability.Update, ability.Member) {
		forbidden(w)
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req dto.UpdateMemberRequest
	if !decode(w, r, &req) {
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		failValidation(w, errs)
		return
	}

	m, err := h.repo.UpdateMember(r.Context(), sc.OrgID, id, repository.MemberUpdate{Role: req.Role, Status: req.Status})
	if err != nil {
		writeRepoError(w, h.logger, "Member", err)
		return
	}
	respond(w, http.StatusOK, m)
}

type InvitationHandler struct {
	repo    *repository.Repository
	ttl     time.Duration
	baseURL string
	logger  *slog.Logger
	now     func() time.Time
}

func NewInvitationHandler(repo *repository.Repository, ttl time.Duration, baseURL string, logger *slog.Logger) *InvitationHandler {
	return &InvitationHandler{
		repo:    repo,
		ttl:     ttl,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		now:     time.Now,
	}
}

// List handles GET /api/v1/invitations
func (h *InvitationHandler) List(w http.ResponseWriter, r *http.Request) {
	sc, ab := sessionOf(r)
	if !ab.Can(ability.Read, ability.Invitation) {
		forbidden(w)
		return
	}

	invs, err := h.repo.ListInvitations(r.Context(), sc.OrgID)
	if err != nil {
		writeRepoError(w, h.logger, "Invitations", err)
		return
	}
	respond(w, http.StatusOK, invs)
}

// Create handles POST /api/v1/invitations. Owners may invite any role,
// staff only clients.
func (h *InvitationHandler) Create(w http.ResponseWriter, r *http.Request) {
	sc, ab := sessionOf(r)
	if !ab.Can(ability.Create, ability.Invitation) {
		forbidden(w)
		return
	}

	var req dto.CreateInvitationRequest
	if !decode(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if errs := req.Validate(); len(errs) > 0 {
		failValidation(w, errs)
		return
	}
	if !ability.CanGrant(sc.Role, req.Role) {
		fail(w, http.StatusForbidden, fmt.Sprintf("A %s cannot invite a %s", sc.Role, req.Role))
		return
	}

	inv := &models.Invitation{
		OrgID:     sc.OrgID,
		Email:     req.Email,
		Role:      req.Role,
		ExpiresAt: h.now().Add(h.ttl),
		InvitedBy: sc.User.ID,
	}
	if req.ClientID != "" {
		clientID := uuid.MustParse(req.ClientID)
		if _, err := h.repo.GetClient(r.Context(), sc.OrgID, clientID); err != nil {
			writeRepoError(w, h.logger, "Client", err)
			return
		}
		inv.ClientID = &clientID
	}

	if err := h.repo.CreateInvitation(r.Context(), inv); err != nil {
		writeRepoError(w, h.logger, "Invitation", err)
		return
	}

	h.logger.Info("invitation created", "org_id", sc.OrgID, "role", inv.Role, "invited_by", sc.User.ID)
	respond(w, http.StatusCreated, dto.InvitationResponse{
		Invitation: *inv,
		AcceptURL:  h.baseURL + "/invite/" + inv.Token,
	})
}

// Delete handles DELETE /api/v1/invitations/{id}
func (h *InvitationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sc, ab := sessionOf(r)
	if !ab.Can(ability.Delete, ability.Invitation) {
		forbidden(w)
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.repo.DeleteInvitation(r.Context(), sc.OrgID, id); err != nil {
		writeRepoError(w, h.logger, "Invitation", err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"id": id.String()})
}

// Accept handles POST /api/v1/invitations/{token}/accept for the signed-in user.
func (h *InvitationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	sc, _ := sessionOf(r)

	m, err := h.repo.AcceptInvitation(r.Context(), chi.URLParam(r, "token"), sc.User, h.now())
	if err != nil {
		writeRepoError(w, h.logger, "Invitation", err)
		return
	}
	respond(w, http.StatusOK, m)
}
