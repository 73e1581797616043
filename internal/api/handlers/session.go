package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/agencydesk/internal/api/dto"
	"github.com/hugh/agencydesk/internal/api/middleware"
	"github.com/hugh/agencydesk/internal/api/validation"
	"github.com/hugh/agencydesk/internal/repository"
)

type SessionHandler struct {
	repo   *repository.Repository
	logger *slog.Logger
}

func NewSessionHandler(repo *repository.Repository, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{repo: repo, logger: logger}
}

// Get handles GET /api/v1/session
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sc := middleware.GetSession(r.Context())

	resp := dto.SessionResponse{User: sc.User, LinkedClientIDs: sc.LinkedClientIDs}
	if sc.OrgID != uuid.Nil {
		org := sc.OrgID.String()
		resp.OrgID = &org
	}
	if sc.Role != "" {
		role := sc.Role
		resp.Role = &role
	}
	respond(w, http.StatusOK, resp)
}

// CreateOrganization handles POST /api/v1/organizations. The caller becomes
// the owner of the new organization.
func (h *SessionHandler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	sc := middleware.GetSession(r.Context())
	if sc.Provisioned() {
		fail(w, http.StatusConflict, "Already a member of an organization")
		return
	}

	var req dto.CreateOrganizationRequest
	if !decode(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(validation.SanitizeString(req.Name))
	if errs := req.Validate(); len(errs) > 0 {
		failValidation(w, errs)
		return
	}

	org, member, err := h.repo.CreateOrganization(r.Context(), sc.User, req.Name)
	if err != nil {
		writeRepoError(w, h.logger, "Organization", err)
		return
	}

	h.logger.Info("organization created", "org_id", org.ID, "owner_id", sc.User.ID)
	respond(w, http.StatusCreated, dto.OrganizationResponse{Organization: org, Member: member})
}
