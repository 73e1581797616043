package dto

import (
	"github.com/hugh/agencydesk/internal/api/validation"
	"github.com/hugh/agencydesk/internal/database/models"
)

var clientStatuses = []string{
	models.ClientStatusNew,
	models.ClientStatusOnboarding,
	models.ClientStatusActive,
	models.ClientStatusPaused,
	models.ClientStatusClosed,
}

// Billing holds the sensitive billing details stored encrypted on a client.
type Billing struct {
	TaxID         string `json:"tax_id,omitempty"`
	Address       string `json:"address,omitempty"`
	PaymentMethod string `json:"payment_method,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

type CreateClientRequest struct {
	Name         string   `json:"name"`
	Email        string   `json:"email"`
	Status       string   `json:"status"`
	Plan         string   `json:"plan"`
	Progress     int      `json:"progress"`
	BillingEmail string   `json:"billing_email"`
	BillingCycle string   `json:"billing_cycle"`
	Billing      *Billing `json:"billing,omitempty"`
}

// Normalize cleans free-text fields; call it before Validate.
func (r *CreateClientRequest) Normalize() {
	r.Name = cleanText(r.Name)
}

func (r CreateClientRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Name == "" {
		errors["name"] = "Name is required"
	}
	if r.Email != "" && !validation.IsValidEmail(r.Email) {
		errors["email"] = "Invalid email format"
	}
	if r.Status != "" && !validation.OneOf(r.Status, clientStatuses...) {
		errors["status"] = "Invalid status"
	}
	if !validation.InRange(r.Progress, 0, 100) {
		errors["progress"] = "Progress must be between 0 and 100"
	}
	if r.BillingEmail != "" && !validation.IsValidEmail(r.BillingEmail) {
		errors["billing_email"] = "Invalid email format"
	}
	return errors
}

// UpdateClientRequest is a partial update; nil fields are left unchanged.
type UpdateClientRequest struct {
	Name         *string  `json:"name"`
	Email        *string  `json:"email"`
	Status       *string  `json:"status"`
	Plan         *string  `json:"plan"`
	Progress     *int     `json:"progress"`
	BillingEmail *string  `json:"billing_email"`
	BillingCycle *string  `json:"billing_cycle"`
	Billing      *Billing `json:"billing,omitempty"`
}

// Normalize cleans free-text fields; call it before Validate.
func (r *UpdateClientRequest) Normalize() {
	if r.Name != nil {
		name := cleanText(*r.Name)
		r.Name = &name
	}
}

func (r UpdateClientRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Name != nil && *r.Name == "" {
		errors["name"] = "Name cannot be empty"
	}
	if r.Email != nil && *r.Email != "" && !validation.IsValidEmail(*r.Email) {
		errors["email"] = "Invalid email format"
	}
	if r.Status != nil && !validation.OneOf(*r.Status, clientStatuses...) {
		errors["status"] = "Invalid status"
	}
	if r.Progress != nil && !validation.InRange(*r.Progress, 0, 100) {
		errors["progress"] = "Progress must be between 0 and 100"
	}
	if r.BillingEmail != nil && *r.BillingEmail != "" && !validation.IsValidEmail(*r.BillingEmail) {
		errors["billing_email"] = "Invalid email format"
	}
	return errors
}

// Updates returns the column updates for the non-billing fields.
func (r UpdateClientRequest) Updates() map[string]any {
	updates := make(map[string]any)
	if r.Name != nil {
		updates["name"] = *r.Name
	}
	if r.Email != nil {
		updates["email"] = *r.Email
	}
	if r.Status != nil {
		updates["status"] = *r.Status
	}
	if r.Plan != nil {
		updates["plan"] = *r.Plan
	}
	if r.Progress != nil {
		updates["progress"] = *r.Progress
	}
	if r.BillingEmail != nil {
		updates["billing_email"] = *r.BillingEmail
	}
	if r.BillingCycle != nil {
		updates["billing_cycle"] = *r.BillingCycle
	}
	return updates
}

// ClientResponse is a client row plus the decrypted billing details for
// callers allowed to see them.
type ClientResponse struct {
	models.Client
	Billing *Billing `json:"billing,omitempty"`
}
