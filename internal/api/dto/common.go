package dto

import (
	"strings"

	"github.com/hugh/agencydesk/internal/api/validation"
)

// Envelope wraps every JSON API response.
type Envelope struct {
	OK      bool              `json:"ok"`
	Data    interface{}       `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

func OK(data interface{}) Envelope {
	return Envelope{OK: true, Data: data}
}

func Fail(msg string, details map[string]string) Envelope {
	return Envelope{OK: false, Error: msg, Details: details}
}

type PaginatedResponse struct {
	Items      interface{} `json:"items"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PerPage    int         `json:"per_page"`
	TotalPages int         `json:"total_pages"`
}

type PaginationParams struct {
	Page    int
	PerPage int
}

func (p *PaginationParams) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = 20
	}
	if p.PerPage > 100 {
		p.PerPage = 100
	}
}

func (p *PaginationParams) Offset() int {
	return (p.Page - 1) * p.PerPage
}

func (p *PaginationParams) Response(items interface{}, total int64) PaginatedResponse {
	pages := int((total + int64(p.PerPage) - 1) / int64(p.PerPage))
	return PaginatedResponse{
		Items:      items,
		Total:      total,
		Page:       p.Page,
		PerPage:    p.PerPage,
		TotalPages: pages,
	}
}

// cleanText strips control characters before trimming, so a value made of
// spaces and control characters ends up empty.
func cleanText(s string) string {
	return strings.TrimSpace(validation.SanitizeString(s))
}
