package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/hugh/agencydesk/pkg/crypto"
)

const (
	stateCookieName = "oauth_state"
	stateTTL        = 10 * time.Minute
)

var ErrInvalidState = errors.New("invalid oauth state")

type oauthState struct {
	State string `json:"state"`
	Next  string `json:"next"`
}

// StateStore keeps the OAuth state and post-login redirect in a signed,
// encrypted, short-lived cookie.
type StateStore struct {
	sc     *securecookie.SecureCookie
	secure bool
}

// NewStateStore builds a store from the configured keys. Empty keys are
// generated, which invalidates in-flight sign-ins on restart.
func NewStateStore(hashKey, blockKey string, secure bool) *StateStore {
	hk := []byte(hashKey)
	if len(hk) == 0 {
		hk = securecookie.GenerateRandomKey(64)
	}
	bk := []byte(blockKey)
	if len(bk) == 0 {
		bk = securecookie.GenerateRandomKey(32)
	}
	sc := securecookie.New(hk, bk)
	sc.MaxAge(int(stateTTL.Seconds()))
	return &StateStore{sc: sc, secure: secure}
}

// Issue generates a state value, stores it with next in a cookie and returns it.
func (s *StateStore) Issue(w http.ResponseWriter, next string) (string, error) {
	state, err := crypto.GenerateToken(24)
	if err != nil {
		return "", err
	}
	encoded, err := s.sc.Encode(stateCookieName, oauthState{State: state, Next: safeNext(next)})
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return state, nil
}

// Verify checks state against the cookie, clears it and returns the redirect target.
func (s *StateStore) Verify(w http.ResponseWriter, r *http.Request, state string) (string, error) {
	cookie, err := r.Cookie(stateCookieName)
	if err != nil {
		return "", ErrInvalidState
	}
	s.clear(w)

	var stored oauthState
	if err := s.sc.Decode(stateCookieName, cookie.Value, &stored); err != nil {
		return "", ErrInvalidState
	}
	if state == "" || stored.State != state {
		return "", ErrInvalidState
	}
	return stored.Next, nil
}

func (s *StateStore) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
	})
}

// safeNext only allows local absolute paths as redirect targets.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return "/"
	}
	return next
}
