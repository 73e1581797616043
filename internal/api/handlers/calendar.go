package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/agencydesk/internal/ability"
	"github.com/hugh/agencydesk/internal/api/dto"
	"github.com/hugh/agencydesk/internal/api/validation"
	"github.com/hugh/agencydesk/internal/database/models"
	"github.com/hugh/agencydesk/internal/repository"
	"github.com/hugh/agencydesk/pkg/util"
)

type CalendarHandler struct {
	repo   *repository.Repository
	logger *slog.Logger
}

func NewCalendarHandler(repo *repository.Repository, logger *slog.Logger) *CalendarHandler {
	return &CalendarHandler{repo: repo, logger: logger}
}

// List handles GET /api/v1/calendar?from=&to=&client_id=
func (h *CalendarHandler) List(w http.ResponseWriter, r *http.Request) {
	sc, ab := sessionOf(r)
	q := r.URL.Query()

	var filter repository.EventFilter
	bounds := []struct {
		key string
		dst **time.Time
	}{
		{"from", &filter.From},
		{"to", &filter.To},
	}
	for _, b := range bounds {
		v := q.Get(b.key)
		if v == "" {
			continue
		}
		d, ok := validation.ParseDate(v)
		if !ok {
			failValidation(w, map[string]string{b.key: "Invalid date"})
			return
		}
		*b.dst = &d
	}

	if v := q.Get("client_id"); v != "" {
		clientID, err := uuid.Parse(v)
		if err != nil {
			failValidation(w, map[string]string{"client_id": "Invalid client ID format"})
			return
		}
		if !ab.CanOn(ability.Read, ability.CalendarEvent, clientResource(sc.OrgID, &clientID)) {
			forbidden(w)
			return
		}
		filter.Restricted = true
		filter.Restrict = []uuid.UUID{clientID}
	} else if ab.Restricted() {
		filter.Restricted = true
		filter.Restrict = linkedIDs(ab)
	}

	events, err := h.repo.ListEvents(r.Context(), sc.OrgID, filter)
	if err != nil {
		writeRepoError(w, h.logger, "Calendar events", err)
		return
	}
	respond(w, http.StatusOK, events)
}

// Create handles POST /api/v1/calendar
func (h *CalendarHandler) Create(w http.ResponseWriter, r *http.Request) {
	sc, ab := sessionOf(r)
	if !ab.Can(ability.Create, ability.CalendarEvent) {
		forbidden(w)
		return
	}

	var req dto.CreateEventRequest
	if !decode(w, r, &req) {
		return
	}
	req.Title = util.StripHTML(req.Title)
	req.Notes = util.SanitizeNotes(req.Notes)
	if errs := req.Validate(); len(errs) > 0 {
		failValidation(w, errs)
		return
	}

	date, _ := validation.ParseDate(req.Date)
	e := &models.CalendarEvent{
		OrgID:   sc.OrgID,
		Date:    date,
		Title:   req.Title,
		Channel: util.StripHTML(req.Channel),
		Notes:   req.Notes,
	}
	if req.ClientID != "" {
		clientID := uuid.MustParse(req.ClientID)
		if _, err := h.repo.GetClient(r.Context(), sc.OrgID, clientID); err != nil {
			writeRepoError(w, h.logger, "Client", err)
			return
		}
		e.ClientID = &clientID
	}

	if err := h.repo.CreateEvent(r.Context(), e); err != nil {
		writeRepoError(w, h.logger, "Calendar event", err)
		return
	}
	respond(w, http.StatusCreated, e)
}

// Update handles PATCH /api/v1/calendar/{id}
func (h *CalendarHandler) Update(w http.ResponseWriter, r *http.Request) {
	sc, ab := sessionOf(r)
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	current, err := h.repo.GetEvent(r.Context(), sc.OrgID, id)
	if err != nil {
		writeRepoError(w, h.logger, "Calendar event", err)
		return
	}
	if !ab.CanOn(ability.Update, ability.CalendarEvent, clientResource(sc.OrgID, current.ClientID)) {
		forbidden(w)
		return
	}

	var req dto.UpdateEventRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Title != nil {
		title := util.StripHTML(*req.Title)
		req.Title = &title
	}
	if req.Notes != nil {
		notes := util.SanitizeNotes(*req.Notes)
		req.Notes = &notes
	}
	if errs := req.Validate(); len(errs) > 0 {
		failValidation(w, errs)
		return
	}

	updates := make(map[string]any)
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Date != nil {
		date, _ := validation.ParseDate(*req.Date)
		updates["date"] = date
	}
	if req.Channel != nil {
		updates["channel"] = util.StripHTML(*req.Channel)
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}

	e, err := h.repo.UpdateEvent(r.Context(), sc.OrgID, id, updates)
	if err != nil {
		writeRepoError(w, h.logger, "Calendar event", err)
		return
	}
	respond(w, http.StatusOK, e)
}

// Delete handles DELETE /api/v1/calendar/{id}
func (h *CalendarHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sc, ab := sessionOf(r)
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	current, err := h.repo.GetEvent(r.Context(), sc.OrgID, id)
	if err != nil {
		writeRepoError(w, h.logger, "Calendar event", err)
		return
	}
	if !ab.CanOn(ability.Delete, ability.CalendarEvent, clientResource(sc.OrgID, current.ClientID)) {
		forbidden(w)
		return
	}

	if err := h.repo.DeleteEvent(r.Context(), sc.OrgID, id); err != nil {
		writeRepoError(w, h.logger, "Calendar event", err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"id": id.String()})
}
