package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/agencydesk/internal/api/middleware"
	"github.com/hugh/agencydesk/internal/auth"
	"github.com/hugh/agencydesk/internal/realtime"
)

type AuthHandler struct {
	provider   auth.IdentityProvider
	state      auth.StateKeeper
	authn      auth.Authenticator
	identities realtime.Persister
	tokenTTL   time.Duration
	secure     bool
	logger     *slog.Logger
}

type AuthHandlerConfig struct {
	Provider      auth.IdentityProvider
	State         auth.StateKeeper
	Authenticator auth.Authenticator
	// Identities holds the persisted mirror identity cleared on sign-out.
	Identities   realtime.Persister
	TokenTTL     time.Duration
	SecureCookie bool
	Logger       *slog.Logger
}

func NewAuthHandler(cfg AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		provider:   cfg.Provider,
		state:      cfg.State,
		authn:      cfg.Authenticator,
		identities: cfg.Identities,
		tokenTTL:   cfg.TokenTTL,
		secure:     cfg.SecureCookie,
		logger:     cfg.Logger,
	}
}

// SignIn handles GET /api/v1/auth/signin and redirects to the identity provider.
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	state, err := h.state.Issue(w, r.URL.Query().Get("next"))
	if err != nil {
		h.logger.Error("issuing oauth state failed", "error", err)
		fail(w, http.StatusInternalServerError, "Failed to start sign-in")
		return
	}
	http.Redirect(w, r, h.provider.AuthCodeURL(state), http.StatusFound)
}

// Callback handles GET /api/v1/auth/callback, the provider's redirect back.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		http.Redirect(w, r, "/login?error="+url.QueryEscape(e), http.StatusFound)
		return
	}

	next, err := h.state.Verify(w, r, q.Get("state"))
	if err != nil {
		fail(w, http.StatusBadRequest, "Invalid sign-in state")
		return
	}

	info, err := h.provider.Exchange(r.Context(), q.Get("code"))
	if err != nil {
		h.logger.Warn("oauth exchange failed", "provider", h.provider.Name(), "error", err)
		fail(w, http.StatusUnauthorized, "Sign-in failed")
		return
	}

	resp, err := h.authn.CompleteSignIn(r.Context(), h.provider.Name(), info)
	if err != nil {
		if errors.Is(err, auth.ErrNoEmail) {
			fail(w, http.StatusBadRequest, "The identity provider did not share an email address")
			return
		}
		h.logger.Error("completing sign-in failed", "error", err)
		fail(w, http.StatusInternalServerError, "Sign-in failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    resp.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.tokenTTL.Seconds()),
	})

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		respond(w, http.StatusOK, resp)
		return
	}
	http.Redirect(w, r, next, http.StatusFound)
}

// SignOut handles POST /api/v1/auth/signout. It clears the session cookie and
// the caller's persisted mirror identity.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secure,
		MaxAge:   -1,
	})

	if userID := middleware.GetUserID(r.Context()); userID != uuid.Nil && h.identities != nil {
		if err := h.identities.Delete(r.Context(), mirrorKey(userID)); err != nil {
			h.logger.Warn("clearing mirror identity failed", "user_id", userID, "error", err)
		}
	}

	respond(w, http.StatusOK, map[string]bool{"signed_out": true})
}
