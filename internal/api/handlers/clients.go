package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hibiken/asynq"
	"github.com/hugh/agencydesk/internal/ability"
	"github.com/hugh/agencydesk/internal/api/dto"
	"github.com/hugh/agencydesk/internal/database/models"
	"github.com/hugh/agencydesk/internal/repository"
	"github.com/hugh/agencydesk/internal/tasks"
	"github.com/hugh/agencydesk/pkg/crypto"
)

// TaskEnqueuer is satisfied by *asynq.Client.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type ClientHandler struct {
	repo   *repository.Repository
	enc    *crypto.Encryptor
	queue  TaskEnqueuer
	logger *slog.Logger
}

// NewClientHandler builds the client endpoints. queue may be nil, in which
// case media of deleted clients is not purged.
func NewClientHandler(repo *repository.Repository, enc *crypto.Encryptor, queue TaskEnqueuer, logger *slog.Logger) *ClientHandler {
	return &ClientHandler{repo: repo, enc: enc, queue: queue, logger: logger}
}

func (h *ClientHandler) toResponse(ab *ability.Abilities, c *models.Client) dto.ClientResponse {
	resp := dto.ClientResponse{Client: *c}
	if c.BillingEncrypted == "" || !ab.Can(ability.Read, ability.Billing) {
		return resp
	}
	var billing dto.Billing
	if err := h.enc.DecryptJSON(c.BillingEncrypted, &billing); err != nil {
		h.logger.Error("decrypting billing failed", "client_id", c.ID, "error", err)
		return resp
	}
	resp.Billing = &billing
	return resp
}

// List handles GET /api/v1/clients
func (h *ClientHandler) List(w http.ResponseWriter, r *http.Request) {
	sc, ab := sessionOf(r)

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pagination := dto.PaginationParams{Page: page, PerPage: perPage}
	pagination.Normalize()

	filter := repository.ClientFilter{
		Status: r.URL.Query().Get("status"),
		Limit:  pagination.PerPage,
		Offset: pagination.Offset(),
	}
	if ab.Restricted() {
		filter.Restricted = true
		filter.Restrict = linkedIDs(ab)
	}

	clients, total, err := h.repo.ListClients(r.Context(), sc.OrgID, filter)
	if err != nil {
		writeRepoError(w, h.logger, "Clients", err)
		return
	}

	items := make([]dto.ClientResponse, len(clients))
	for i := range clients {
		items[i] = h.toResponse(ab, &clients[i])
	}
	respond(w, http.StatusOK, pagination.Response(items, total))
}

// Get handles GET /api/v1/clients/{id}
func (h *ClientHandler) Get(w http.ResponseWriter, r *http.Request) {
	sc, ab := sessionOf(r)
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	c, err := h.repo.GetClient(r.Context(), sc.OrgID, id)
	if err != nil {
		writeRepoError(w, h.logger, "Client", err)
		return
	}
	if !ab.CanOn(ability.Read, ability.Client, clientResource(sc.OrgID, &c.ID)) {
		forbidden(w)
		return
	}
	respond(w, http.StatusOK, h.toResponse(ab, c))
}

// Create handles POST /api/v1/clients
func (h *ClientHandler) Create(w http.ResponseWriter, r *http.Request) {
	sc, ab := sessionOf(r)
	if !ab.Can(ability.Create, ability.Client) {
		forbidden(w)
		return
	}

	var req dto.CreateClientRequest
	if !decode(w, r, &req) {
		return
	}
	req.Normalize()
	if errs := req.Validate(); len(errs) > 0 {
		failValidation(w, errs)
		return
	}

	c := &models.Client{
		OrgID:        sc.OrgID,
		Name:         req.Name,
		Email:        req.Email,
		Status:       req.Status,
		Plan:         req.Plan,
		Progress:     req.Progress,
		BillingEmail: req.BillingEmail,
		BillingCycle: req.BillingCycle,
	}
	if c.Status == "" {
		c.Status = models.ClientStatusNew
	}
	if req.Billing != nil {
		if !ab.Can(ability.Update, ability.Billing) {
			fail(w, http.StatusForbidden, "Only owners can set billing details")
			return
		}
		enc, err := h.enc.EncryptJSON(req.Billing)
		if err != nil {
			h.logger.Error("encrypting billing failed", "error", err)
			fail(w, http.StatusInternalServerError, "Failed to store billing details")
			return
		}
		c.BillingEncrypted = enc
	}

	if err := h.repo.CreateClient(r.Context(), c); err != nil {
		writeRepoError(w, h.logger, "Client", err)
		return
	}
	respond(w, http.StatusCreated, h.toResponse(ab, c))
}

// Update handles PATCH /api/v1/clients/{id}
func (h *ClientHandler) Update(w http.ResponseWriter, r *http.Request) {
	sc, ab := sessionOf(r)
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if !ab.CanOn(ability.Update, ability.Client, clientResource(sc.OrgID, &id)) {
		forbidden(w)
		return
	}

	var req dto.UpdateClientRequest
	if !decode(w, r, &req) {
		return
	}
	req.Normalize()
	if errs := req.Validate(); len(errs) > 0 {
		failValidation(w, errs)
		return
	}

	updates := req.Updates()
	if req.Billing != nil {
		if !ab.Can(ability.Update, ability.Billing) {
			fail(w, http.StatusForbidden, "Only owners can set billing details")
			return
		}
		enc, err := h.enc.EncryptJSON(req.Billing)
		if err != nil {
			h.logger.Error("encrypting billing failed", "error", err)
			fail(w, http.StatusInternalServerError, "Failed to store billing details")
			return
		}
		updates["billing_encrypted"] = enc
	}

	c, err := h.repo.UpdateClient(r.Context(), sc.OrgID, id, updates)
	if err != nil {
		writeRepoError(w, h.logger, "Client", err)
		return
	}
	respond(w, http.StatusOK, h.toResponse(ab, c))
}

// Delete handles DELETE /api/v1/clients/{id}. Stored media is purged by the worker.
func (h *ClientHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sc, ab := sessionOf(r)
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if !ab.CanOn(ability.Delete, ability.Client, clientResource(sc.OrgID, &id)) {
		forbidden(w)
		return
	}

	if _, err := h.repo.DeleteClient(r.Context(), sc.OrgID, id); err != nil {
		writeRepoError(w, h.logger, "Client", err)
		return
	}

	if h.queue != nil {
		task, err := tasks.NewMediaPurgeTask(tasks.MediaPurgePayload{OrgID: sc.OrgID, ClientID: id})
		if err == nil {
			_, err = h.queue.EnqueueContext(r.Context(), task)
		}
		if err != nil {
			h.logger.Error("enqueueing media purge failed", "client_id", id, "error", err)
		}
	}

	respond(w, http.StatusOK, map[string]string{"id": id.String()})
}
