// Package rss retrieves search feeds through a JSON-converting proxy, falling back
// to a raw relay plus XML parsing when the proxy cannot serve the feed.
package rss

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/deusflow/topicnews/internal/normalize"
	"github.com/deusflow/topicnews/internal/source"
)

const (
	DefaultJSONProxyBase = "https://api.rss2json.com/v1/api.json"
	DefaultRelayBase     = "https://api.allorigins.win/raw"

	maxBodyBytes = 10 << 20
	userAgent    = "topicnews/1.0 (+https://github.com/deusflow/topicnews)"
)

// Transport retrieves and decodes the items of one feed URL.
type Transport interface {
	Name() string
	Fetch(ctx context.Context, feedURL string) ([]normalize.RawItem, error)
}

// JSONProxy asks an RSS-to-JSON service for the feed: GET <base>?rss_url=<feed>.
type JSONProxy struct {
	BaseURL string
	Client  *http.Client
}

func NewJSONProxy(baseURL string, client *http.Client) *JSONProxy {
	if baseURL == "" {
		baseURL = DefaultJSONProxyBase
	}
	return &JSONProxy{BaseURL: baseURL, Client: client}
}

func (p *JSONProxy) Name() string { return "json-proxy" }

type jsonPayload struct {
	Status  string                `json:"status"`
	Message string                `json:"message"`
	Items   *[]normalize.JSONItem `json:"items"`
}

func (p *JSONProxy) Fetch(ctx context.Context, feedURL string) ([]normalize.RawItem, error) {
	body, err := get(ctx, p.Client, withParam(p.BaseURL, "rss_url", feedURL))
	if err != nil {
		return nil, &TransportError{Transport: p.Name(), URL: feedURL, Err: err}
	}

	var payload jsonPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &TransportError{Transport: p.Name(), URL: feedURL, Err: fmt.Errorf("%w: %v", ErrMalformedPayload, err)}
	}
	if payload.Items == nil {
		detail := "no items array"
		if payload.Message != "" {
			detail = payload.Message
		}
		return nil, &TransportError{Transport: p.Name(), URL: feedURL, Err: fmt.Errorf("%w: %s", ErrMalformedPayload, detail)}
	}

	items := make([]normalize.RawItem, 0, len(*payload.Items))
	for _, it := range *payload.Items {
		items = append(items, it)
	}
	return items, nil
}

// Relay fetches the raw feed through a CORS relay (GET <base>?url=<feed>) and
// parses the XML itself.
type Relay struct {
	BaseURL string
	Client  *http.Client
}

func NewRelay(baseURL string, client *http.Client) *Relay {
	if baseURL == "" {
		baseURL = DefaultRelayBase
	}
	return &Relay{BaseURL: baseURL, Client: client}
}

func (r *Relay) Name() string { return "relay-xml" }

func (r *Relay) Fetch(ctx context.Context, feedURL string) ([]normalize.RawItem, error) {
	body, err := get(ctx, r.Client, withParam(r.BaseURL, "url", feedURL))
	if err != nil {
		return nil, &TransportError{Transport: r.Name(), URL: feedURL, Err: err}
	}

	items, err := ParseXML(body)
	if err != nil {
		return nil, &TransportError{Transport: r.Name(), URL: feedURL, Err: err}
	}
	return items, nil
}

// ParseXML extracts every item of an RSS or Atom document.
func ParseXML(body []byte) ([]normalize.RawItem, error) {
	// gofeed.Parser keeps per-parse state, so each call gets its own.
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	items := make([]normalize.RawItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		items = append(items, toXMLItem(it))
	}
	return items, nil
}

func toXMLItem(it *gofeed.Item) normalize.XMLItem {
	link := it.Link
	if link == "" && len(it.Links) > 0 {
		link = it.Links[0]
	}
	description := it.Description
	if description == "" {
		description = it.Content
	}
	pubDate := it.Published
	if pubDate == "" {
		pubDate = it.Updated
	}
	return normalize.XMLItem{
		Title:       it.Title,
		Link:        link,
		Description: description,
		PubDate:     pubDate,
		MediaURL:    mediaURL(it),
	}
}

// mediaURL looks at media:content, media:thumbnail, enclosures and the item image, in that order.
func mediaURL(it *gofeed.Item) string {
	if media, ok := it.Extensions["media"]; ok {
		for _, name := range []string{"content", "thumbnail"} {
			for _, ext := range media[name] {
				if u := strings.TrimSpace(ext.Attrs["url"]); u != "" {
					return u
				}
			}
		}
	}
	for _, enc := range it.Enclosures {
		if enc != nil && strings.TrimSpace(enc.URL) != "" {
			return strings.TrimSpace(enc.URL)
		}
	}
	if it.Image != nil {
		return strings.TrimSpace(it.Image.URL)
	}
	return ""
}

func withParam(base, key, value string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + key + "=" + source.EncodeComponent(value)
}

func get(ctx context.Context, client *http.Client, target string) ([]byte, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return body, nil
}
