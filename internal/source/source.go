// Package source builds search-scoped feed URLs for topic queries.
package source

import (
	"net/url"
	"strings"
)

const DefaultBaseURL = "https://news.google.com/rss/search"

// Resolver maps a free-text query onto a news search feed endpoint with fixed
// locale parameters.
type Resolver struct {
	BaseURL  string
	Language string // hl
	Region   string // gl
	Edition  string // ceid
}

// NewGoogleNews returns a Resolver for the Google News RSS search endpoint.
func NewGoogleNews(hl, gl, ceid string) Resolver {
	return Resolver{BaseURL: DefaultBaseURL, Language: hl, Region: gl, Edition: ceid}
}

// Resolve returns the feed URL for query. Input is encoded as-is; it never fails.
func (r Resolver) Resolve(query string) string {
	base := r.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}

	var b strings.Builder
	b.WriteString(base)
	if strings.Contains(base, "?") {
		b.WriteByte('&')
	} else {
		b.WriteByte('?')
	}
	b.WriteString("q=")
	b.WriteString(EncodeComponent(query))
	appendParam(&b, "hl", r.Language)
	appendParam(&b, "gl", r.Region)
	appendParam(&b, "ceid", r.Edition)
	return b.String()
}

func appendParam(b *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	b.WriteByte('&')
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(encodeLocale(value))
}

// encodeLocale keeps ':' literal, as in ceid=IN:en.
func encodeLocale(s string) string {
	return strings.ReplaceAll(EncodeComponent(s), "%3A", ":")
}

// EncodeComponent percent-encodes s for use as a single query value.
// Spaces become %20 rather than '+', which some proxies mangle.
func EncodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
