package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/agencydesk/internal/auth"
	"github.com/hugh/agencydesk/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_CompleteSignIn(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	jwtService := auth.NewJWTService("test-secret", time.Hour)
	svc := auth.NewService(db, jwtService)
	ctx := context.Background()

	t.Run("creates user on first sign in", func(t *testing.T) {
		resp, err := svc.CompleteSignIn(ctx, "google", &auth.UserInfo{Subject: "sub-1", Email: "Ada@Example.com", Name: "Ada"})
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", resp.User.Email)

		claims, err := jwtService.ValidateToken(resp.Token)
		require.NoError(t, err)
		assert.Equal(t, resp.User.ID, claims.UserID)
	})

	t.Run("returns same user on repeat sign in", func(t *testing.T) {
		first, err := svc.CompleteSignIn(ctx, "google", &auth.UserInfo{Subject: "sub-2", Email: "bob@example.com"})
		require.NoError(t, err)
		second, err := svc.CompleteSignIn(ctx, "google", &auth.UserInfo{Subject: "sub-2", Email: "bob@example.com", Name: "Bob"})
		require.NoError(t, err)

		assert.Equal(t, first.User.ID, second.User.ID)
		assert.Equal(t, "Bob", second.User.Name)
	})

	t.Run("links existing user by email", func(t *testing.T) {
		existing := testutil.CreateTestUser(t, db)
		resp, err := svc.CompleteSignIn(ctx, "google", &auth.UserInfo{Subject: "sub-3", Email: existing.Email})
		require.NoError(t, err)
		assert.Equal(t, existing.ID, resp.User.ID)
		assert.Equal(t, "sub-3", resp.User.ProviderSubject)
	})

	t.Run("rejects missing email", func(t *testing.T) {
		_, err := svc.CompleteSignIn(ctx, "google", &auth.UserInfo{Subject: "sub-4"})
		assert.ErrorIs(t, err, auth.ErrNoEmail)
	})
}

func TestService_GetUserByID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	svc := auth.NewService(db, auth.NewJWTService("test-secret", time.Hour))

	user := testutil.CreateTestUser(t, db)
	got, err := svc.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, got.Email)

	_, err = svc.GetUserByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestStateStore_RoundTrip(t *testing.T) {
	store := auth.NewStateStore("", "", false)

	rec := httptest.NewRecorder()
	state, err := store.Issue(rec, "/clients?tab=active")
	require.NoError(t, err)
	require.NotEmpty(t, state)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/callback", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}

	next, err := store.Verify(httptest.NewRecorder(), req, state)
	require.NoError(t, err)
	assert.Equal(t, "/clients?tab=active", next)

	_, err = store.Verify(httptest.NewRecorder(), req, "other-state")
	assert.ErrorIs(t, err, auth.ErrInvalidState)
}

func TestStateStore_RejectsOffsiteRedirects(t *testing.T) {
	store := auth.NewStateStore("", "", false)

	for _, next := range []string{"https://evil.example", "//evil.example", ""} {
		rec := httptest.NewRecorder()
		state, err := store.Issue(rec, next)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		for _, c := range rec.Result().Cookies() {
			req.AddCookie(c)
		}
		got, err := store.Verify(httptest.NewRecorder(), req, state)
		require.NoError(t, err)
		assert.Equal(t, "/", got)
	}
}

func TestStateStore_MissingCookie(t *testing.T) {
	store := auth.NewStateStore("", "", false)
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	_, err := store.Verify(httptest.NewRecorder(), req, "anything")
	assert.ErrorIs(t, err, auth.ErrInvalidState)
}

func TestProvider_Exchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"at","token_type":"Bearer","expires_in":3600}`))
		case "/userinfo":
			if r.Header.Get("Authorization") != "Bearer at" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"sub":"123","email":"ada@example.com","name":"Ada","picture":"https://img/ada.png"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := auth.NewProvider(testutil.OAuthConfig(srv.URL), "http://localhost/api/v1/auth/callback")
	assert.Contains(t, p.AuthCodeURL("xyz"), "state=xyz")

	info, err := p.Exchange(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, &auth.UserInfo{Subject: "123", Email: "ada@example.com", Name: "Ada", Picture: "https://img/ada.png"}, info)
}
