package dto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpdateClientRequest_Normalize(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		invalid bool
	}{
		{"spaces only", "   ", "", true},
		{"control characters only", "\x01\x02", "", true},
		{"mixed blank", " \x00 \t ", "", true},
		{"padded", "  Acme\x07 Labs ", "Acme Labs", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			req := UpdateClientRequest{Name: &in}
			req.Normalize()
			assert.Equal(t, tt.want, *req.Name)
			assert.Equal(t, tt.invalid, req.Validate()["name"] != "")
			if !tt.invalid {
				assert.Equal(t, tt.want, req.Updates()["name"])
			}
		})
	}

	var untouched UpdateClientRequest
	untouched.Normalize()
	assert.Nil(t, untouched.Name)
	assert.Empty(t, untouched.Validate())
}

func TestTaskRequests_Normalize(t *testing.T) {
	create := CreateTaskRequest{Title: " \x01 "}
	create.Normalize()
	assert.Contains(t, create.Validate(), "title")

	title := "\tShip\x00 it "
	update := UpdateTaskRequest{Title: &title}
	update.Normalize()
	assert.Empty(t, update.Validate())
	assert.Equal(t, "Ship it", update.Updates()["title"])
}

func TestEventRequests_NotesLimit(t *testing.T) {
	ok := strings.Repeat("n", MaxNotesBytes)
	tooLong := ok + "n"

	create := CreateEventRequest{Date: "2026-11-02", Title: "Launch", Notes: ok}
	assert.Empty(t, create.Validate())
	create.Notes = tooLong
	assert.Contains(t, create.Validate(), "notes")

	update := UpdateEventRequest{Notes: &tooLong}
	assert.Contains(t, update.Validate(), "notes")
	update.Notes = &ok
	assert.Empty(t, update.Validate())
}
