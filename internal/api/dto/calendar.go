package dto

import (
	"github.com/hugh/agencydesk/internal/api/validation"
)

// MaxNotesBytes caps sanitized calendar notes so an event row, escaped as
// JSON, fits in a single change notification.
const MaxNotesBytes = 3000

const notesTooLong = "Notes must be at most 3000 bytes"

type CreateEventRequest struct {
	ClientID string `json:"client_id"`
	Date     string `json:"date"`
	Title    string `json:"title"`
	Channel  string `json:"channel"`
	Notes    string `json:"notes"`
}

func (r CreateEventRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Title == "" {
		errors["title"] = "Title is required"
	}
	if r.Date == "" {
		errors["date"] = "Date is required"
	} else if _, ok := validation.ParseDate(r.Date); !ok {
		errors["date"] = "Invalid date"
	}
	if r.ClientID != "" && !validation.IsValidUUID(r.ClientID) {
		errors["client_id"] = "Invalid client ID format"
	}
	if len(r.Notes) > MaxNotesBytes {
		errors["notes"] = notesTooLong
	}
	return errors
}

type UpdateEventRequest struct {
	Date    *string `json:"date"`
	Title   *string `json:"title"`
	Channel *string `json:"channel"`
	Notes   *string `json:"notes"`
}

func (r UpdateEventRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Title != nil && *r.Title == "" {
		errors["title"] = "Title cannot be empty"
	}
	if r.Date != nil {
		if _, ok := validation.ParseDate(*r.Date); !ok {
			errors["date"] = "Invalid date"
		}
	}
	if r.Notes != nil && len(*r.Notes) > MaxNotesBytes {
		errors["notes"] = notesTooLong
	}
	return errors
}
