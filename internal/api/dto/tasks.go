package dto

import (
	"time"

	"github.com/hugh/agencydesk/internal/api/validation"
	"github.com/hugh/agencydesk/internal/database/models"
)

var (
	taskStatuses = []string{models.TaskStatusPending, models.TaskStatusInProgress, models.TaskStatusDone}
	urgencies    = []string{models.UrgencyLow, models.UrgencyNormal, models.UrgencyHigh, models.UrgencyCritical}
)

type CreateTaskRequest struct {
	Title   string `json:"title"`
	Status  string `json:"status"`
	Urgency string `json:"urgency"`
	DueDate string `json:"due_date"`
}

// Normalize cleans free-text fields; call it before Validate.
func (r *CreateTaskRequest) Normalize() {
	r.Title = cleanText(r.Title)
}

func (r CreateTaskRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Title == "" {
		errors["title"] = "Title is required"
	}
	if r.Status != "" && !validation.OneOf(r.Status, taskStatuses...) {
		errors["status"] = "Invalid status"
	}
	if r.Urgency != "" && !validation.OneOf(r.Urgency, urgencies...) {
		errors["urgency"] = "Invalid urgency"
	}
	if r.DueDate != "" {
		if _, ok := validation.ParseDate(r.DueDate); !ok {
			errors["due_date"] = "Invalid date"
		}
	}
	return errors
}

// Due returns the parsed due date, or nil when none was given.
func (r CreateTaskRequest) Due() *time.Time {
	if d, ok := validation.ParseDate(r.DueDate); ok {
		return &d
	}
	return nil
}

type UpdateTaskRequest struct {
	Title   *string `json:"title"`
	Status  *string `json:"status"`
	Urgency *string `json:"urgency"`
	// An empty string clears the due date.
	DueDate *string `json:"due_date"`
}

// Normalize cleans free-text fields; call it before Validate.
func (r *UpdateTaskRequest) Normalize() {
	if r.Title != nil {
		title := cleanText(*r.Title)
		r.Title = &title
	}
}

func (r UpdateTaskRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Title != nil && *r.Title == "" {
		errors["title"] = "Title cannot be empty"
	}
	if r.Status != nil && !validation.OneOf(*r.Status, taskStatuses...) {
		errors["status"] = "Invalid status"
	}
	if r.Urgency != nil && !validation.OneOf(*r.Urgency, urgencies...) {
		errors["urgency"] = "Invalid urgency"
	}
	if r.DueDate != nil && *r.DueDate != "" {
		if _, ok := validation.ParseDate(*r.DueDate); !ok {
			errors["due_date"] = "Invalid date"
		}
	}
	return errors
}

func (r UpdateTaskRequest) Updates() map[string]any {
	updates := make(map[string]any)
	if r.Title != nil {
		updates["title"] = *r.Title
	}
	if r.Status != nil {
		updates["status"] = *r.Status
	}
	if r.Urgency != nil {
		updates["urgency"] = *r.Urgency
	}
	if r.DueDate != nil {
		if d, ok := validation.ParseDate(*r.DueDate); ok {
			updates["due_date"] = d
		} else {
			updates["due_date"] = nil
		}
	}
	return updates
}
