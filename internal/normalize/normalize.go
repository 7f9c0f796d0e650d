// Package normalize maps the raw item shapes of both transports onto article.Article.
package normalize

import (
	"time"

	"github.com/deusflow/topicnews/internal/article"
)

// DefaultDescriptionLimit bounds Article.Description, in runes.
const DefaultDescriptionLimit = 1000

// Options controls normalization of one batch.
type Options struct {
	// DescriptionLimit caps the description length in runes; <=0 means DefaultDescriptionLimit.
	DescriptionLimit int
	// Now stands in for missing or unparsable publication dates.
	Now time.Time
}

func (o Options) limit() int {
	if o.DescriptionLimit <= 0 {
		return DefaultDescriptionLimit
	}
	return o.DescriptionLimit
}

func (o Options) now() time.Time {
	if o.Now.IsZero() {
		return time.Now()
	}
	return o.Now
}

// Normalize dispatches on the concrete item shape. Unknown shapes yield ok=false.
func Normalize(item RawItem, opts Options) (article.Article, bool) {
	switch it := item.(type) {
	case JSONItem:
		return FromJSON(it, opts), true
	case *JSONItem:
		if it == nil {
			return article.Article{}, false
		}
		return FromJSON(*it, opts), true
	case XMLItem:
		return FromXML(it, opts), true
	case *XMLItem:
		if it == nil {
			return article.Article{}, false
		}
		return FromXML(*it, opts), true
	default:
		return article.Article{}, false
	}
}

// NormalizeAll maps items in order, skipping shapes Normalize does not know.
func NormalizeAll(items []RawItem, opts Options) []article.Article {
	out := make([]article.Article, 0, len(items))
	for _, it := range items {
		if a, ok := Normalize(it, opts); ok {
			out = append(out, a)
		}
	}
	return out
}

// FromJSON maps a JSON proxy item.
func FromJSON(item JSONItem, opts Options) article.Article {
	content := firstNonEmpty(item.Content, item.ContentEncoded, item.Description)

	description := firstNonEmpty(item.Description, item.ContentSnippet)
	if description == "" {
		description = content
	}
	description = Truncate(StripHTML(description), opts.limit())

	image := firstNonEmpty(item.Thumbnail, item.Enclosure.Link)
	if image == "" {
		image = ExtractImage(content)
	}

	source := firstNonEmpty(item.Source.Title, item.Author)
	if source == "" {
		source = ExtractDomain(item.Link)
	}

	now := opts.now()
	pubDate := firstNonEmpty(item.PubDate, item.ISODate)
	if pubDate == "" {
		pubDate = now.UTC().Format(time.RFC3339)
	}
	published, _ := article.ParseDate(pubDate, now)

	return article.Article{
		Title:       trim(item.Title),
		Link:        trim(item.Link),
		Content:     content,
		Description: description,
		PubDate:     pubDate,
		Published:   published,
		Source:      trim(source),
		Image:       trim(image),
	}
}

// FromXML maps an RSS/Atom element. The source is always derived from the link.
func FromXML(item XMLItem, opts Options) article.Article {
	now := opts.now()
	pubDate := trim(item.PubDate)
	if pubDate == "" {
		pubDate = now.UTC().Format(time.RFC3339)
	}
	published, _ := article.ParseDate(pubDate, now)

	image := trim(item.MediaURL)
	if image == "" {
		image = ExtractImage(item.Description)
	}

	link := trim(item.Link)
	return article.Article{
		Title:       trim(item.Title),
		Link:        link,
		Content:     item.Description,
		Description: Truncate(StripHTML(item.Description), opts.limit()),
		PubDate:     pubDate,
		Published:   published,
		Source:      ExtractDomain(link),
		Image:       image,
	}
}
