package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/hugh/agencydesk/internal/repository"
	"github.com/hugh/agencydesk/internal/storage"
	"github.com/hugh/agencydesk/pkg/crypto"
)

const resealBatch = 200

type Handler struct {
	repo    *repository.Repository
	objects storage.ObjectStore
	enc     *crypto.Encryptor
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler wires the task handlers. enc may be nil, in which case billing
// reseal tasks are dropped.
func NewHandler(repo *repository.Repository, objects storage.ObjectStore, enc *crypto.Encryptor, logger *slog.Logger) *Handler {
	return &Handler{
		repo:    repo,
		objects: objects,
		enc:     enc,
		logger:  logger,
		now:     time.Now,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeInvitationSweep, h.HandleInvitationSweep)
	mux.HandleFunc(TypeMediaPurge, h.HandleMediaPurge)
	mux.HandleFunc(TypeBillingReseal, h.HandleBillingReseal)
}

func (h *Handler) HandleInvitationSweep(ctx context.Context, _ *asynq.Task) error {
	removed, err := h.repo.SweepExpiredInvitations(ctx, h.now())
	if err != nil {
		h.logger.Error("invitation sweep failed", "removed", removed, "error", err)
		return err
	}
	if removed > 0 {
		h.logger.Info("swept expired invitations", "removed", removed)
	}
	return nil
}

// HandleMediaPurge removes every stored object of a deleted client, then its
// media rows. Rows stay in place until the objects are gone so a retry can
// find them again.
func (h *Handler) HandleMediaPurge(ctx context.Context, t *asynq.Task) error {
	var payload MediaPurgePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	paths, err := h.repo.ClientMediaPaths(ctx, payload.OrgID, payload.ClientID)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return nil
	}

	h.logger.Info("purging client media",
		"org_id", payload.OrgID,
		"client_id", payload.ClientID,
		"objects", len(paths),
		"backend", h.objects.Name(),
	)

	if err := h.objects.Remove(ctx, paths); err != nil {
		return fmt.Errorf("removing objects: %w", err)
	}

	rows, err := h.repo.PurgeClientMedia(ctx, payload.OrgID, payload.ClientID)
	if err != nil {
		return err
	}

	h.logger.Info("purged client media", "client_id", payload.ClientID, "rows", rows)
	return nil
}

// HandleBillingReseal walks every client with billing details and rewrites the
// ones sealed under a retired key. Values no key can open are logged and left
// alone.
func (h *Handler) HandleBillingReseal(ctx context.Context, _ *asynq.Task) error {
	if h.enc == nil {
		return fmt.Errorf("no encryptor configured: %w", asynq.SkipRetry)
	}

	var resealed, unreadable int
	after := uuid.Nil
	for {
		clients, err := h.repo.ClientsWithBilling(ctx, after, resealBatch)
		if err != nil {
			return err
		}
		for _, c := range clients {
			ciphertext, changed, err := h.enc.Reseal(c.BillingEncrypted)
			if err != nil {
				unreadable++
				h.logger.Warn("billing details unreadable", "client_id", c.ID, "org_id", c.OrgID, "error", err)
				continue
			}
			if !changed {
				continue
			}
			if err := h.repo.SetClientBilling(ctx, c.ID, ciphertext); err != nil {
				return err
			}
			resealed++
		}
		if len(clients) < resealBatch {
			break
		}
		after = clients[len(clients)-1].ID
	}

	h.logger.Info("billing reseal finished", "resealed", resealed, "unreadable", unreadable)
	return nil
}
