// Package matcher classifies host retry messages as rate-limit signals.
package matcher

import "strings"

// DefaultPatterns covers the rate-limit phrasings the major backends
// emit. Deployments with unusual providers can extend the list via
// configuration.
var DefaultPatterns = []string{
	"rate limit",
	"rate_limit",
	"too many requests",
	"quota exceeded",
	"overloaded",
	"429",
	"usage limit",
	"capacity constraints",
}

// Matcher decides whether a text message indicates a rate-limit
// condition. Matching is plain case-insensitive substring search; no
// regex semantics, no normalization beyond case folding.
type Matcher struct {
	phrases []string
}

// New creates a Matcher over the given phrases. Empty phrases are
// dropped; an empty list matches nothing.
func New(phrases []string) *Matcher {
	lowered := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			lowered = append(lowered, p)
		}
	}
	return &Matcher{phrases: lowered}
}

// Matches reports whether any configured phrase occurs in text.
func (m *Matcher) Matches(text string) bool {
	if text == "" {
		return false
	}
	lowered := strings.ToLower(text)
	for _, p := range m.phrases {
		if strings.Contains(lowered, p) {
			return true
		}
	}
	return false
}

// Patterns returns the configured phrase list (lower-cased).
func (m *Matcher) Patterns() []string {
	return m.phrases
}
