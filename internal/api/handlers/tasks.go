package handlers

import (
	"log/slog"
	"net/http"

	"github.com/hugh/agencydesk/internal/ability"
	"github.com/hugh/agencydesk/internal/api/dto"
	"github.com/hugh/agencydesk/internal/database/models"
	"github.com/hugh/agencydesk/internal/repository"
)

type TaskHandler struct {
	repo   *repository.Repository
	logger *slog.Logger
}

func NewTaskHandler(repo *repository.Repository, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{repo: repo, logger: logger}
}

// List handles GET /api/v1/clients/{id}/tasks
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	sc, ab := sessionOf(r)
	clientID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if !ab.CanOn(ability.Read, ability.Task, clientResource(sc.OrgID, &clientID)) {
		forbidden(w)
		return
	}
	if _, err := h.repo.GetClient(r.Context(), sc.OrgID, clientID); err != nil {
		writeRepoError(w, h.logger, "Client", err)
		return
	}

	list, err := h.repo.ListTasks(r.Context(), sc.OrgID, clientID, r.URL.Query().Get("status"))
	if err != nil {
		writeRepoError(w, h.logger, "Tasks", err)
		return
	}
	respond(w, http.StatusOK, list)
}

// Create handles POST /api/v1/clients/{id}/tasks
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	sc, ab := sessionOf(r)
	clientID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if !ab.CanOn(ability.Create, ability.Task, clientResource(sc.OrgID, &clientID)) {
		forbidden(w)
		return
	}

	var req dto.CreateTaskRequest
	if !decode(w, r, &req) {
		return
	}
	req.Normalize()
	if errs := req.Validate(); len(errs) > 0 {
		failValidation(w, errs)
		return
	}

	if _, err := h.repo.GetClient(r.Context(), sc.OrgID, clientID); err != nil {
		writeRepoError(w, h.logger, "Client", err)
		return
	}

	t := &models.Task{
		OrgID:    sc.OrgID,
		ClientID: clientID,
		Title:    req.Title,
		Status:   req.Status,
		Urgency:  req.Urgency,
		DueDate:  req.Due(),
	}
	if t.Status == "" {
		t.Status = models.TaskStatusPending
	}
	if t.Urgency == "" {
		t.Urgency = models.UrgencyNormal
	}

	if err := h.repo.CreateTask(r.Context(), t); err != nil {
		writeRepoError(w, h.logger, "Task", err)
		return
	}
	respond(w, http.StatusCreated, t)
}

// Update handles PATCH /api/v1/tasks/{id}
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	sc, ab := sessionOf(r)
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	current, err := h.repo.GetTask(r.Context(), sc.OrgID, id)
	if err != nil {
		writeRepoError(w, h.logger, "Task", err)
		return
	}
	if !ab.CanOn(ability.Update, ability.Task, clientResource(sc.OrgID, &current.ClientID)) {
		forbidden(w)
		return
	}

	var req dto.UpdateTaskRequest
	if !decode(w, r, &req) {
		return
	}
	req.Normalize()
	if errs := req.Validate(); len(errs) > 0 {
		failValidation(w, errs)
		return
	}

	t, err := h.repo.UpdateTask(r.Context(), sc.OrgID, id, req.Updates())
	if err != nil {
		writeRepoError(w, h.logger, "Task", err)
		return
	}
	respond(w, http.StatusOK, t)
}

// Delete handles DELETE /api/v1/tasks/{id}
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sc, ab := sessionOf(r)
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	current, err := h.repo.GetTask(r.Context(), sc.OrgID, id)
	if err != nil {
		writeRepoError(w, h.logger, "Task", err)
		return
	}
	if !ab.CanOn(ability.Delete, ability.Task, clientResource(sc.OrgID, &current.ClientID)) {
		forbidden(w)
		return
	}

	if err := h.repo.DeleteTask(r.Context(), sc.OrgID, id); err != nil {
		writeRepoError(w, h.logger, "Task", err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"id": id.String()})
}
