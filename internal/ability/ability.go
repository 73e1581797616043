// Package ability decides what a member role may do inside its organization.
package ability

import "sort"

// Role names, least to most privileged.
const (
	RoleClient = "client"
	RoleStaff  = "staff"
	RoleOwner  = "owner"
	// RoleGuest is an authenticated user without an organization.
	RoleGuest = "guest"
)

var hierarchy = []string{RoleClient, RoleStaff, RoleOwner}

// Index returns the role's position in the hierarchy, or -1 for guest,
// empty and unknown roles.
func Index(role string) int {
	for i, r := range hierarchy {
		if r == role {
			return i
		}
	}
	return -1
}

// Valid reports whether role is one of client, staff or owner.
func Valid(role string) bool {
	return Index(role) >= 0
}

// Can reports whether role is at least minimum. Guest and empty roles never pass.
func Can(role, minimum string) bool {
	i := Index(role)
	if i < 0 {
		return false
	}
	return i >= Index(minimum)
}

// CanGrant reports whether a member with role may invite someone as grant.
// Owners may grant any role; staff may only bring in clients.
func CanGrant(role, grant string) bool {
	if !Valid(grant) {
		return false
	}
	switch role {
	case RoleOwner:
		return true
	case RoleStaff:
		return grant == RoleClient
	default:
		return false
	}
}

type Action string

const (
	Manage Action = "manage"
	Read   Action = "read"
	Create Action = "create"
	Update Action = "update"
	Delete Action = "delete"
)

type Subject string

const (
	All           Subject = "all"
	Organization  Subject = "Organization"
	Member        Subject = "Member"
	Invitation    Subject = "Invitation"
	Client        Subject = "Client"
	Billing       Subject = "Billing"
	Task          Subject = "Task"
	CalendarEvent Subject = "CalendarEvent"
	Media         Subject = "Media"
)

type rule struct {
	action  Action
	subject Subject
	// Only applies to resources of a client linked to the user.
	linkedOnly bool
}

func (r rule) matches(action Action, subject Subject) bool {
	return (r.action == Manage || r.action == action) &&
		(r.subject == All || r.subject == subject)
}

var rules = map[string][]rule{
	RoleOwner: {
		{action: Manage, subject: All},
	},
	RoleStaff: {
		{action: Manage, subject: Client},
		{action: Manage, subject: Task},
		{action: Manage, subject: CalendarEvent},
		{action: Manage, subject: Media},
		{action: Read, subject: Organization},
		{action: Read, subject: Member},
		{action: Read, subject: Invitation},
		{action: Create, subject: Invitation},
	},
	RoleClient: {
		{action: Read, subject: Client, linkedOnly: true},
		{action: Read, subject: Task, linkedOnly: true},
		{action: Read, subject: CalendarEvent, linkedOnly: true},
		{action: Read, subject: Media, linkedOnly: true},
		{action: Create, subject: Media, linkedOnly: true},
	},
}

// Resource identifies the row an action targets.
type Resource struct {
	OrgID    string
	ClientID string
}

// Abilities is the capability set of one member within one organization.
type Abilities struct {
	role   string
	orgID  string
	linked map[string]struct{}
}

// For builds the capability set for role in orgID. linkedClientIDs only
// matter for the client role.
func For(role, orgID string, linkedClientIDs []string) *Abilities {
	linked := make(map[string]struct{}, len(linkedClientIDs))
	for _, id := range linkedClientIDs {
		linked[id] = struct{}{}
	}
	return &Abilities{role: role, orgID: orgID, linked: linked}
}

func (a *Abilities) Role() string {
	return a.role
}

func (a *Abilities) OrgID() string {
	return a.orgID
}

// Linked reports whether clientID is one of the user's linked clients.
func (a *Abilities) Linked(clientID string) bool {
	_, ok := a.linked[clientID]
	return ok
}

// LinkedClientIDs returns the linked client ids in sorted order.
func (a *Abilities) LinkedClientIDs() []string {
	ids := make([]string, 0, len(a.linked))
	for id := range a.linked {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Restricted reports whether the member only sees linked clients.
func (a *Abilities) Restricted() bool {
	return a.role == RoleClient
}

// Can reports whether action on subject is allowed for at least some
// resource. Use CanOn to check a specific row.
func (a *Abilities) Can(action Action, subject Subject) bool {
	if a.orgID == "" {
		return false
	}
	for _, r := range rules[a.role] {
		if r.matches(action, subject) {
			return true
		}
	}
	return false
}

// CanOn reports whether action on subject is allowed for res. Resources of
// another organization are always denied.
func (a *Abilities) CanOn(action Action, subject Subject, res Resource) bool {
	if a.orgID == "" || res.OrgID != a.orgID {
		return false
	}
	for _, r := range rules[a.role] {
		if !r.matches(action, subject) {
			continue
		}
		if r.linkedOnly && !a.Linked(res.ClientID) {
			continue
		}
		return true
	}
	return false
}
