package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hugh/agencydesk/internal/ability"
	"github.com/hugh/agencydesk/internal/database/models"
	"github.com/hugh/agencydesk/internal/repository"
	"github.com/hugh/agencydesk/internal/storage"
)

const (
	maxUploadBytes = 50 << 20
	maxMemoryBytes = 8 << 20
)

type MediaHandler struct {
	repo    *repository.Repository
	objects storage.ObjectStore
	logger  *slog.Logger
}

func NewMediaHandler(repo *repository.Repository, objects storage.ObjectStore, logger *slog.Logger) *MediaHandler {
	return &MediaHandler{repo: repo, objects: objects, logger: logger}
}

// List handles GET /api/v1/clients/{id}/media?folder=
func (h *MediaHandler) List(w http.ResponseWriter, r *http.Request) {
	sc, ab := sessionOf(r)
	clientID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if !ab.CanOn(ability.Read, ability.Media, clientResource(sc.OrgID, &clientID)) {
		forbidden(w)
		return
	}

	items, err := h.repo.ListMedia(r.Context(), sc.OrgID, clientID, r.URL.Query().Get("folder"))
	if err != nil {
		writeRepoError(w, h.logger, "Media", err)
		return
	}
	respond(w, http.StatusOK, items)
}

// Upload handles POST /api/v1/clients/{id}/media as multipart/form-data with
// a "file" part and optional "folder" and "subfolder" fields.
func (h *MediaHandler) Upload(w http.ResponseWriter, r *http.Request) {
	sc, ab := sessionOf(r)
	clientID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if !ab.CanOn(ability.Create, ability.Media, clientResource(sc.OrgID, &clientID)) {
		forbidden(w)
		return
	}
	if _, err := h.repo.GetClient(r.Context(), sc.OrgID, clientID); err != nil {
		writeRepoError(w, h.logger, "Client", err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxMemoryBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		fail(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		failValidation(w, map[string]string{"file": "File is required"})
		return
	}
	defer file.Close()

	folder, subfolder := r.FormValue("folder"), r.FormValue("subfolder")
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := storage.BuildPath(clientID, folder, subfolder, header.Filename)
	if err := h.objects.Upload(r.Context(), key, contentType, file, header.Size); err != nil {
		h.logger.Error("uploading media failed", "client_id", clientID, "backend", h.objects.Name(), "error", err)
		fail(w, http.StatusInternalServerError, "Upload failed")
		return
	}

	item := &models.MediaItem{
		OrgID:       sc.OrgID,
		ClientID:    clientID,
		Path:        key,
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Folder:      folder,
		Subfolder:   subfolder,
	}
	if err := h.repo.CreateMedia(r.Context(), item); err != nil {
		if rmErr := h.objects.Remove(r.Context(), []string{key}); rmErr != nil {
			h.logger.Warn("removing orphaned upload failed", "path", key, "error", rmErr)
		}
		writeRepoError(w, h.logger, "Media", err)
		return
	}
	respond(w, http.StatusCreated, item)
}

// Delete handles DELETE /api/v1/media/{id}. The stored object goes first so
// a failure leaves the row in place to retry.
func (h *MediaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sc, ab := sessionOf(r)
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	item, err := h.repo.GetMedia(r.Context(), sc.OrgID, id)
	if err != nil {
		writeRepoError(w, h.logger, "Media", err)
		return
	}
	if !ab.CanOn(ability.Delete, ability.Media, clientResource(sc.OrgID, &item.ClientID)) {
		forbidden(w)
		return
	}

	if err := h.objects.Remove(r.Context(), []string{item.Path}); err != nil {
		h.logger.Error("removing media object failed", "path", item.Path, "error", err)
		fail(w, http.StatusInternalServerError, "Failed to remove file")
		return
	}
	if _, err := h.repo.DeleteMedia(r.Context(), sc.OrgID, id); err != nil {
		writeRepoError(w, h.logger, "Media", err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"id": id.String()})
}
