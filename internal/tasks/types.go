package tasks

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Task type names
const (
	TypeInvitationSweep = "invitations:sweep"
	TypeMediaPurge      = "media:purge"
	TypeBillingReseal   = "billing:reseal"
)

// MediaPurgePayload identifies the client whose stored media is removed
type MediaPurgePayload struct {
	OrgID    uuid.UUID `json:"org_id"`
	ClientID uuid.UUID `json:"client_id"`
}

func NewMediaPurgeTask(payload MediaPurgePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeMediaPurge, data, asynq.MaxRetry(5)), nil
}

// InvitationSweepPayload is empty; the sweep covers every organization
type InvitationSweepPayload struct{}

func NewInvitationSweepTask() *asynq.Task {
	return asynq.NewTask(TypeInvitationSweep, nil)
}

// NewBillingResealTask re-encrypts billing details under the current key after
// a rotation. Only one can be queued at a time.
func NewBillingResealTask() *asynq.Task {
	return asynq.NewTask(TypeBillingReseal, nil, asynq.MaxRetry(3), asynq.Unique(time.Hour))
}
