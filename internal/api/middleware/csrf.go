package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/hugh/agencydesk/pkg/crypto"
)

const (
	csrfCookieName = "csrf_token"
	csrfHeaderName = "X-CSRF-Token"
	csrfTokenTTL   = 24 * time.Hour
)

var (
	errCSRFMissing = errors.New("csrf token missing")
	errCSRFInvalid = errors.New("invalid csrf token")
)

type csrfClaims struct {
	Session string `json:"s"`
	Nonce   string `json:"n"`
}

// CSRF guards cookie-authenticated mutations with a double-submit token.
// Tokens are signed and bound to the session cookie, so every server instance
// can verify them without shared state.
type CSRF struct {
	sc     *securecookie.SecureCookie
	secure bool
}

// NewCSRF builds a guard from hashKey. An empty key is generated, which
// invalidates issued tokens on restart.
func NewCSRF(hashKey string, secure bool) *CSRF {
	hk := []byte(hashKey)
	if len(hk) == 0 {
		hk = securecookie.GenerateRandomKey(64)
	}
	sc := securecookie.New(hk, nil)
	sc.MaxAge(int(csrfTokenTTL.Seconds()))
	return &CSRF{sc: sc, secure: secure}
}

// sessionBinding identifies the browser session without carrying the token itself.
func sessionBinding(r *http.Request) string {
	cookie, err := r.Cookie(TokenCookie)
	if err != nil || cookie.Value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(cookie.Value))
	return hex.EncodeToString(sum[:16])
}

// Token issues a token bound to the request's session cookie. It returns ""
// when the request carries no session.
func (c *CSRF) Token(r *http.Request) (string, error) {
	binding := sessionBinding(r)
	if binding == "" {
		return "", nil
	}
	nonce, err := crypto.GenerateToken(16)
	if err != nil {
		return "", err
	}
	return c.sc.Encode(csrfCookieName, csrfClaims{Session: binding, Nonce: nonce})
}

func (c *CSRF) valid(token, binding string) bool {
	var claims csrfClaims
	if err := c.sc.Decode(csrfCookieName, token, &claims); err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(claims.Session), []byte(binding)) == 1
}

func (c *CSRF) verify(r *http.Request, binding string) error {
	header := r.Header.Get(csrfHeaderName)
	if header == "" {
		return errCSRFMissing
	}
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
		return errCSRFInvalid
	}
	if !c.valid(header, binding) {
		return errCSRFInvalid
	}
	return nil
}

// ensureCookie sets a fresh token cookie unless the current one still matches
// the session, e.g. after a new sign-in replaced the session cookie.
func (c *CSRF) ensureCookie(w http.ResponseWriter, r *http.Request, binding string) {
	if cookie, err := r.Cookie(csrfCookieName); err == nil && c.valid(cookie.Value, binding) {
		return
	}
	token, err := c.Token(r)
	if err != nil || token == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false, // read by the dashboard and echoed in the header
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(csrfTokenTTL.Seconds()),
	})
}

// Middleware checks unsafe requests that authenticate with the session cookie.
// Requests that send credentials in a header are passed through.
func (c *CSRF) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		binding := sessionBinding(r)

		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
			if binding != "" {
				c.ensureCookie(w, r, binding)
			}
			next.ServeHTTP(w, r)
			return
		}

		if binding == "" || r.Header.Get("Authorization") != "" || r.Header.Get("X-Auth-Token") != "" {
			next.ServeHTTP(w, r)
			return
		}

		if err := c.verify(r, binding); err != nil {
			msg := "Invalid CSRF token"
			if errors.Is(err, errCSRFMissing) {
				msg = "CSRF token missing"
			}
			writeError(w, http.StatusForbidden, msg)
			return
		}
		next.ServeHTTP(w, r)
	})
}
