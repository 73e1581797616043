package dto

import (
	"github.com/hugh/agencydesk/internal/ability"
	"github.com/hugh/agencydesk/internal/api/validation"
	"github.com/hugh/agencydesk/internal/database/models"
)

type UpdateMemberRequest struct {
	Role   *string `json:"role"`
	Status *string `json:"status"`
}

func (r UpdateMemberRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Role == nil && r.Status == nil {
		errors["role"] = "Role or status is required"
	}
	if r.Role != nil && !validation.OneOf(*r.Role, ability.RoleClient, ability.RoleStaff) {
		errors["role"] = "Role must be client or staff"
	}
	if r.Status != nil && !validation.OneOf(*r.Status, models.MemberStatusActive, models.MemberStatusPending) {
		errors["status"] = "Invalid status"
	}
	return errors
}

type CreateInvitationRequest struct {
	Email    string `json:"email"`
	Role     string `json:"role"`
	ClientID string `json:"client_id"`
}

func (r CreateInvitationRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Email == "" {
		errors["email"] = "Email is required"
	} else if !validation.IsValidEmail(r.Email) {
		errors["email"] = "Invalid email format"
	}
	if !validation.OneOf(r.Role, ability.RoleClient, ability.RoleStaff) {
		errors["role"] = "Role must be client or staff"
	}
	if r.ClientID != "" {
		if !validation.IsValidUUID(r.ClientID) {
			errors["client_id"] = "Invalid client ID format"
		} else if r.Role != ability.RoleClient {
			errors["client_id"] = "Only client invitations can be linked to a client"
		}
	}
	return errors
}

type InvitationResponse struct {
	models.Invitation
	AcceptURL string `json:"accept_url,omitempty"`
}
