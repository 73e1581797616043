package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func csrfCookieFrom(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == csrfCookieName {
			return c
		}
	}
	return nil
}

func TestCSRF(t *testing.T) {
	guard := NewCSRF("", false)
	handler := guard.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	sessionCookie := &http.Cookie{Name: TokenCookie, Value: "cookie-session-token-value"}

	mutate := func(cookies []*http.Cookie, header string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/clients", nil)
		for _, c := range cookies {
			req.AddCookie(c)
		}
		if header != "" {
			req.Header.Set(csrfHeaderName, header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	t.Run("safe request issues a token cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
		req.AddCookie(sessionCookie)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		cookie := csrfCookieFrom(t, rec)
		require.NotNil(t, cookie)
		assert.False(t, cookie.HttpOnly)
		assert.Equal(t, http.StatusOK, mutate([]*http.Cookie{sessionCookie, cookie}, cookie.Value))
	})

	t.Run("no cookie issued without a session", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Nil(t, csrfCookieFrom(t, rec))
	})

	t.Run("header credentials skip the check", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/clients", nil)
		req.AddCookie(sessionCookie)
		req.Header.Set("Authorization", "Bearer abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("requests without a session cookie pass", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, mutate(nil, ""))
	})

	t.Run("missing token", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, mutate([]*http.Cookie{sessionCookie}, ""))
	})

	t.Run("header must match the cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(sessionCookie)
		token, err := guard.Token(req)
		require.NoError(t, err)

		other, err := guard.Token(req)
		require.NoError(t, err)

		cookie := &http.Cookie{Name: csrfCookieName, Value: token}
		assert.Equal(t, http.StatusForbidden, mutate([]*http.Cookie{sessionCookie, cookie}, other))
		assert.Equal(t, http.StatusOK, mutate([]*http.Cookie{sessionCookie, cookie}, token))
	})

	t.Run("token is bound to the session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: TokenCookie, Value: "someone-elses-session"})
		token, err := guard.Token(req)
		require.NoError(t, err)

		cookie := &http.Cookie{Name: csrfCookieName, Value: token}
		assert.Equal(t, http.StatusForbidden, mutate([]*http.Cookie{sessionCookie, cookie}, token))
	})

	t.Run("token from another key is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(sessionCookie)
		token, err := NewCSRF("", false).Token(req)
		require.NoError(t, err)

		cookie := &http.Cookie{Name: csrfCookieName, Value: token}
		assert.Equal(t, http.StatusForbidden, mutate([]*http.Cookie{sessionCookie, cookie}, token))
	})
}

func TestCSRF_SharedKeyAcrossInstances(t *testing.T) {
	key := "0123456789abcdef0123456789abcdef"
	issuer := NewCSRF(key, true)
	verifier := NewCSRF(key, true).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	session := &http.Cookie{Name: TokenCookie, Value: "session"}
	get := httptest.NewRequest(http.MethodGet, "/", nil)
	get.AddCookie(session)
	token, err := issuer.Token(get)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/media/1", nil)
	req.AddCookie(session)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: token})
	req.Header.Set(csrfHeaderName, token)
	rec := httptest.NewRecorder()
	verifier.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
