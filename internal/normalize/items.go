package normalize

import (
	"bytes"
	"encoding/json"
)

// RawItem is one undecoded feed entry as delivered by a transport. The set of
// implementations is closed: JSONItem and XMLItem.
type RawItem interface {
	rawItem()
}

// JSONItem is an entry of the JSON-converting proxy's "items" array.
type JSONItem struct {
	Title          string    `json:"title"`
	Link           string    `json:"link"`
	GUID           string    `json:"guid"`
	PubDate        string    `json:"pubDate"`
	ISODate        string    `json:"isoDate"`
	Author         string    `json:"author"`
	Thumbnail      string    `json:"thumbnail"`
	Description    string    `json:"description"`
	Content        string    `json:"content"`
	ContentEncoded string    `json:"content_encoded"`
	ContentSnippet string    `json:"contentSnippet"`
	Enclosure      Enclosure `json:"enclosure"`
	Source         Source    `json:"source"`
}

// Enclosure is the proxy's enclosure object. The proxy emits [] or {} when a
// feed item has none, so decoding is lenient.
type Enclosure struct {
	Link string `json:"link"`
	Type string `json:"type"`
}

func (e *Enclosure) UnmarshalJSON(data []byte) error {
	type plain Enclosure
	if !isObject(data) {
		*e = Enclosure{}
		return nil
	}
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		*e = Enclosure{}
		return nil
	}
	*e = Enclosure(p)
	return nil
}

// Source is the embedded <source> element some feeds carry per item.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

func (s *Source) UnmarshalJSON(data []byte) error {
	type plain Source
	if !isObject(data) {
		*s = Source{}
		return nil
	}
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		*s = Source{}
		return nil
	}
	*s = Source(p)
	return nil
}

func isObject(data []byte) bool {
	data = bytes.TrimSpace(data)
	return len(data) > 0 && data[0] == '{'
}

// XMLItem is an <item>/<entry> read straight from RSS or Atom XML.
// MediaURL holds the URL of the first media or enclosure child, if any.
type XMLItem struct {
	Title       string
	Link        string
	Description string
	PubDate     string
	MediaURL    string
}

func (JSONItem) rawItem() {}
func (XMLItem) rawItem()  {}
