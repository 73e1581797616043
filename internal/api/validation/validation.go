package validation

import (
	"net/mail"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

const maxEmailLen = 254

// IsValidEmail accepts a bare address with a dotted domain. Display-name
// forms like "Ann <ann@example.com>" are rejected.
func IsValidEmail(email string) bool {
	if email == "" || len(email) > maxEmailLen {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return false
	}
	_, domain, _ := strings.Cut(addr.Address, "@")
	dot := strings.LastIndexByte(domain, '.')
	return dot > 0 && len(domain)-dot > 2
}

// IsValidUUID accepts only the canonical hyphenated form.
func IsValidUUID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// OneOf reports whether v is one of allowed.
func OneOf(v string, allowed ...string) bool {
	return slices.Contains(allowed, v)
}

// InRange reports whether lo <= n <= hi.
func InRange(n, lo, hi int) bool {
	return n >= lo && n <= hi
}

// ParseDate accepts a calendar date (2006-01-02) or an RFC 3339 timestamp
// and returns it in UTC.
func ParseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// SanitizeString drops control characters from user-entered names and
// titles, keeping line breaks and tabs.
func SanitizeString(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n', r == '\r', r == '\t':
			return r
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
}
