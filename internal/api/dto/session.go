package dto

import "github.com/hugh/agencydesk/internal/database/models"

type SessionResponse struct {
	User            *models.User `json:"user"`
	OrgID           *string      `json:"org_id"`
	Role            *string      `json:"role"`
	LinkedClientIDs []string     `json:"linked_client_ids,omitempty"`
}

type CreateOrganizationRequest struct {
	Name string `json:"name"`
}

func (r CreateOrganizationRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Name == "" {
		errors["name"] = "Name is required"
	} else if len(r.Name) > 120 {
		errors["name"] = "Name must be at most 120 characters"
	}
	return errors
}

type OrganizationResponse struct {
	Organization *models.Organization `json:"organization"`
	Member       *models.Member       `json:"member"`
}
