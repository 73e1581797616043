package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/agencydesk/internal/ability"
	"github.com/hugh/agencydesk/internal/api/dto"
	"github.com/hugh/agencydesk/internal/auth"
	"github.com/hugh/agencydesk/internal/session"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserEmailKey contextKey = "user_email"
	SessionKey   contextKey = "session"
)

// OrgHeader selects the organization when a user belongs to several.
const OrgHeader = "X-Org-ID"

// TokenCookie carries the session token for browser requests.
const TokenCookie = "token"

// SessionResolver builds the session for an authenticated user.
type SessionResolver interface {
	Resolve(ctx context.Context, userID, preferredOrg uuid.UUID) (session.Context, error)
}

func tokenFromRequest(r *http.Request) string {
	// 1. Check Authorization header (API requests)
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	// 2. Check cookie (web dashboard)
	if cookie, err := r.Cookie(TokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	// 3. Check X-Auth-Token header (localStorage fallback for AJAX)
	return r.Header.Get("X-Auth-Token")
}

func withClaims(r *http.Request, claims *auth.Claims) *http.Request {
	ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
	ctx = context.WithValue(ctx, UserEmailKey, claims.Email)
	annotate(ctx, "user_id", claims.UserID)
	return r.WithContext(ctx)
}

// Auth rejects requests without a valid session token.
func Auth(tokens auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				handleUnauthorized(w, r)
				return
			}

			claims, err := tokens.ValidateToken(token)
			if err != nil {
				handleUnauthorized(w, r)
				return
			}

			next.ServeHTTP(w, withClaims(r, claims))
		})
	}
}

// OptionalAuth attaches the token's claims when present and valid and lets
// every request through.
func OptionalAuth(tokens auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := tokenFromRequest(r); token != "" {
				if claims, err := tokens.ValidateToken(token); err == nil {
					r = withClaims(r, claims)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Session resolves the caller's organization and role. A failed lookup is a
// server error, never a downgrade to an anonymous session.
func Session(resolver SessionResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var preferred uuid.UUID
			if h := r.Header.Get(OrgHeader); h != "" {
				id, err := uuid.Parse(h)
				if err != nil {
					writeError(w, http.StatusBadRequest, "Invalid "+OrgHeader+" header")
					return
				}
				preferred = id
			}

			sc, err := resolver.Resolve(r.Context(), GetUserID(r.Context()), preferred)
			if err != nil {
				logger.Error("resolving session failed",
					"user_id", GetUserID(r.Context()),
					"error", err,
					"lookup", errors.Is(err, session.ErrLookupFailed),
				)
				writeError(w, http.StatusInternalServerError, "Failed to resolve session")
				return
			}

			annotate(r.Context(), "org_id", sc.OrgID, "role", sc.Role)
			ctx := context.WithValue(r.Context(), SessionKey, sc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuthenticated rejects sessions without a user, such as a token whose
// account no longer exists.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !GetSession(r.Context()).Authenticated() {
			handleUnauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole admits sessions whose role is at least minimum.
func RequireRole(minimum string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sc := GetSession(r.Context())
			if !sc.Authenticated() {
				handleUnauthorized(w, r)
				return
			}
			if !ability.Can(sc.Role, minimum) {
				writeError(w, http.StatusForbidden, "Forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// isNavigation reports whether r is a browser page load: a GET or HEAD that
// asks for HTML. Fetch and XHR calls send application/json or */* instead.
func isNavigation(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// handleUnauthorized sends browsers to /login and everyone else a 401 envelope.
func handleUnauthorized(w http.ResponseWriter, r *http.Request) {
	if isNavigation(r) {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	writeError(w, http.StatusUnauthorized, "Unauthorized")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(dto.Fail(msg, nil))
}

// Helper functions to extract values from context
func GetUserID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(UserIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

func GetUserEmail(ctx context.Context) string {
	if email, ok := ctx.Value(UserEmailKey).(string); ok {
		return email
	}
	return ""
}

// GetSession returns the resolved session, or the zero session when the
// Session middleware did not run.
func GetSession(ctx context.Context) session.Context {
	if sc, ok := ctx.Value(SessionKey).(session.Context); ok {
		return sc
	}
	return session.Context{}
}
