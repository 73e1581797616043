package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hugh/agencydesk/internal/api/dto"
	"github.com/hugh/agencydesk/internal/repository"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respond(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, dto.OK(data))
}

func fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, dto.Fail(msg, nil))
}

func failValidation(w http.ResponseWriter, details map[string]string) {
	writeJSON(w, http.StatusBadRequest, dto.Fail("Validation failed", details))
}

// decode reads a JSON body into v and reports failure to the client.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		fail(w, http.StatusBadRequest, "Invalid ID format")
		return uuid.Nil, false
	}
	return id, true
}

// writeRepoError maps repository errors onto HTTP statuses. Unexpected
// errors are logged and hidden from the client.
func writeRepoError(w http.ResponseWriter, logger *slog.Logger, entity string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		fail(w, http.StatusNotFound, entity+" not found")
	case errors.Is(err, repository.ErrConflict),
		errors.Is(err, repository.ErrAlreadyMember),
		errors.Is(err, repository.ErrAlreadyProvisioned),
		errors.Is(err, repository.ErrInvitationUsed):
		fail(w, http.StatusConflict, rootMessage(err))
	case errors.Is(err, repository.ErrOwnerImmutable),
		errors.Is(err, repository.ErrInvitationMismatch):
		fail(w, http.StatusForbidden, rootMessage(err))
	case errors.Is(err, repository.ErrInvitationExpired):
		fail(w, http.StatusBadRequest, rootMessage(err))
	default:
		logger.Error("request failed", "entity", entity, "error", err)
		fail(w, http.StatusInternalServerError, "Internal server error")
	}
}

// rootMessage returns the message of the first repository sentinel in err.
func rootMessage(err error) string {
	for _, sentinel := range []error{
		repository.ErrConflict,
		repository.ErrAlreadyMember,
		repository.ErrAlreadyProvisioned,
		repository.ErrInvitationUsed,
		repository.ErrOwnerImmutable,
		repository.ErrInvitationMismatch,
		repository.ErrInvitationExpired,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
