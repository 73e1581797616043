package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/hugh/agencydesk/internal/ability"
	"github.com/hugh/agencydesk/internal/api/middleware"
	"github.com/hugh/agencydesk/internal/session"
)

func sessionOf(r *http.Request) (session.Context, *ability.Abilities) {
	sc := middleware.GetSession(r.Context())
	return sc, sc.Abilities()
}

// clientResource addresses a row belonging to clientID within the session's org.
func clientResource(orgID uuid.UUID, clientID *uuid.UUID) ability.Resource {
	res := ability.Resource{OrgID: orgID.String()}
	if clientID != nil {
		res.ClientID = clientID.String()
	}
	return res
}

func linkedIDs(ab *ability.Abilities) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(ab.LinkedClientIDs()))
	for _, s := range ab.LinkedClientIDs() {
		if id, err := uuid.Parse(s); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func forbidden(w http.ResponseWriter) {
	fail(w, http.StatusForbidden, "Forbidden")
}
