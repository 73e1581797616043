package middleware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/agencydesk/internal/auth"
	"github.com/hugh/agencydesk/internal/database/models"
	"github.com/hugh/agencydesk/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubResolver struct {
	sc        session.Context
	err       error
	gotUser   uuid.UUID
	gotPrefer uuid.UUID
}

func (s *stubResolver) Resolve(_ context.Context, userID, preferred uuid.UUID) (session.Context, error) {
	s.gotUser, s.gotPrefer = userID, preferred
	return s.sc, s.err
}

func TestAuth_ValidToken_AuthorizationHeader(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret", 24*time.Hour)

	userID := uuid.New()
	email := "test@example.com"

	token, err := jwtService.GenerateToken(userID, email)
	require.NoError(t, err)

	handler := Auth(jwtService)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, userID, GetUserID(r.Context()))
		assert.Equal(t, email, GetUserEmail(r.Context()))

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))

	req := httptest.NewRequest("GET", "/api/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestAuth_ValidToken_Cookie(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret", 24*time.Hour)

	userID := uuid.New()
	token, err := jwtService.GenerateToken(userID, "test@example.com")
	require.NoError(t, err)

	handler := Auth(jwtService)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, userID, GetUserID(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: TokenCookie, Value: token})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth_ValidToken_XAuthTokenHeader(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret", 24*time.Hour)

	userID := uuid.New()
	token, err := jwtService.GenerateToken(userID, "test@example.com")
	require.NoError(t, err)

	handler := Auth(jwtService)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, userID, GetUserID(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/test", nil)
	req.Header.Set("X-Auth-Token", token)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth_Rejections(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret", 24*time.Hour)
	other := auth.NewJWTService("other-secret", 24*time.Hour)
	expiring := auth.NewJWTService("test-secret", time.Nanosecond)

	foreign, err := other.GenerateToken(uuid.New(), "test@example.com")
	require.NoError(t, err)
	expired, err := expiring.GenerateToken(uuid.New(), "test@example.com")
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	tests := []struct {
		name   string
		header string
	}{
		{"no token", ""},
		{"invalid token", "Bearer invalid-token"},
		{"different secret", "Bearer " + foreign},
		{"expired", "Bearer " + expired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Auth(jwtService)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("Handler should not be called")
			}))

			req := httptest.NewRequest("GET", "/api/test", nil)
			req.Header.Set("Accept", "application/json")
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.JSONEq(t, `{"ok":false,"error":"Unauthorized"}`, rec.Body.String())
		})
	}
}

func TestAuth_NoToken_WebRequest(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret", 24*time.Hour)

	handler := Auth(jwtService)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not be called")
	}))

	tests := []struct {
		name     string
		method   string
		path     string
		accept   string
		redirect bool
	}{
		{"page load", http.MethodGet, "/dashboard", "text/html", true},
		{"api page load", http.MethodGet, "/api/v1/session", "text/html,application/xhtml+xml,*/*;q=0.8", true},
		{"fetch call", http.MethodGet, "/api/v1/session", "application/json", false},
		{"no accept header", http.MethodGet, "/api/v1/clients", "", false},
		{"form post", http.MethodPost, "/api/v1/clients", "text/html", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if tt.redirect {
				assert.Equal(t, http.StatusFound, rec.Code)
				assert.Equal(t, "/login", rec.Header().Get("Location"))
				return
			}
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret", 24*time.Hour)
	userID := uuid.New()
	token, err := jwtService.GenerateToken(userID, "test@example.com")
	require.NoError(t, err)

	var seen uuid.UUID
	handler := OptionalAuth(jwtService)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUserID(r.Context())
	}))

	req := httptest.NewRequest("POST", "/api/v1/auth/signout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, userID, seen)

	req = httptest.NewRequest("POST", "/api/v1/auth/signout", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uuid.Nil, seen)
}

func TestSession_AttachesResolvedSession(t *testing.T) {
	userID, orgID := uuid.New(), uuid.New()
	resolver := &stubResolver{sc: session.Context{User: &models.User{Email: "a@example.com"}, OrgID: orgID, Role: "staff"}}

	var got session.Context
	handler := Session(resolver, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetSession(r.Context())
	}))

	req := httptest.NewRequest("GET", "/api/v1/session", nil)
	req = req.WithContext(context.WithValue(req.Context(), UserIDKey, userID))
	req.Header.Set(OrgHeader, orgID.String())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID, resolver.gotUser)
	assert.Equal(t, orgID, resolver.gotPrefer)
	assert.Equal(t, "staff", got.Role)
	assert.Equal(t, orgID, got.OrgID)
}

func TestSession_LookupFailureIsServerError(t *testing.T) {
	resolver := &stubResolver{err: fmt.Errorf("%w: connection refused", session.ErrLookupFailed)}
	handler := Session(resolver, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not be called")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/session", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSession_InvalidOrgHeader(t *testing.T) {
	handler := Session(&stubResolver{}, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not be called")
	}))

	req := httptest.NewRequest("GET", "/api/v1/session", nil)
	req.Header.Set(OrgHeader, "not-a-uuid")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetters_NotInContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, uuid.Nil, GetUserID(ctx))
	assert.Equal(t, "", GetUserEmail(ctx))
	assert.False(t, GetSession(ctx).Authenticated())
}

func withSession(r *http.Request, sc session.Context) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), SessionKey, sc))
}

func TestRequireRole(t *testing.T) {
	user := &models.User{Email: "a@example.com"}
	orgID := uuid.New()

	tests := []struct {
		name       string
		sc         session.Context
		minimum    string
		wantStatus int
	}{
		{"owner passes staff gate", session.Context{User: user, OrgID: orgID, Role: "owner"}, "staff", http.StatusOK},
		{"staff passes staff gate", session.Context{User: user, OrgID: orgID, Role: "staff"}, "staff", http.StatusOK},
		{"client fails staff gate", session.Context{User: user, OrgID: orgID, Role: "client"}, "staff", http.StatusForbidden},
		{"client passes client gate", session.Context{User: user, OrgID: orgID, Role: "client"}, "client", http.StatusOK},
		{"guest fails client gate", session.Context{User: user, Role: "guest"}, "client", http.StatusForbidden},
		{"anonymous", session.Context{}, "client", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireRole(tt.minimum)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, withSession(httptest.NewRequest("GET", "/api/v1/clients", nil), tt.sc))

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestRequireAuthenticated(t *testing.T) {
	handler := RequireAuthenticated(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, withSession(httptest.NewRequest("GET", "/api/v1/session", nil), session.Context{}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	guest := session.Context{User: &models.User{}, Role: "guest"}
	handler.ServeHTTP(rec, withSession(httptest.NewRequest("GET", "/api/v1/session", nil), guest))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRecovery(t *testing.T) {
	handler := Recovery(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("boom"))
	}))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
