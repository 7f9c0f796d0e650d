// Package article holds the canonical news record every feed item is mapped into.
package article

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Article is a normalized feed item. Values are treated as immutable once built;
// use WithSection to derive a copy bound to a category.
type Article struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Content     string    `json:"content"`
	Description string    `json:"description"`
	PubDate     string    `json:"pub_date"`
	Published   time.Time `json:"published"`
	Source      string    `json:"source"`
	Image       string    `json:"image"`
	Section     string    `json:"section,omitempty"`
}

// Key returns the deduplication identity: the trimmed link, or the trimmed
// title when the link is empty. An empty key means the article must be dropped.
func (a Article) Key() string {
	if k := strings.TrimSpace(a.Link); k != "" {
		return k
	}
	return strings.TrimSpace(a.Title)
}

// WithSection returns a copy of a assigned to the given category.
func (a Article) WithSection(section string) Article {
	a.Section = section
	return a
}

// ParseDate parses RFC-822, RFC-3339 and the other layouts feeds commonly use.
// Dates without a zone are read as UTC. Unparsable or empty input yields
// fallback and ok=false.
func ParseDate(raw string, fallback time.Time) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, false
	}
	t, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil {
		return fallback, false
	}
	return t, true
}
