package util

import (
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	notesPolicy     *bluemonday.Policy
	notesPolicyOnce sync.Once
	stripPolicy     = bluemonday.StrictPolicy()
)

// SanitizeNotes keeps basic formatting (links, emphasis, lists) and strips
// everything else, including scripts and event handlers.
func SanitizeNotes(s string) string {
	notesPolicyOnce.Do(func() {
		p := bluemonday.UGCPolicy()
		p.RequireNoFollowOnLinks(true)
		p.AddTargetBlankToFullyQualifiedLinks(true)
		notesPolicy = p
	})
	return strings.TrimSpace(notesPolicy.Sanitize(s))
}

// StripHTML removes all markup from a plain-text field such as a title.
func StripHTML(s string) string {
	return strings.TrimSpace(stripPolicy.Sanitize(s))
}
