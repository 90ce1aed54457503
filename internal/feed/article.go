// Package feed implements the multi-provider news aggregation engine: query
// planning, provider adapters, concurrent fan-out, deduplication and sorting.
package feed

import (
	"net/url"
	"strings"
	"time"

	"github.com/RobinCoderZhao/optimist-daily/pkg/htmltext"
)

// ProviderID identifies the adapter that produced an article.
type ProviderID string

const (
	MediaStack       ProviderID = "mediastack"
	GNews            ProviderID = "gnews"
	NewsAPI          ProviderID = "newsapi"
	NewsAPIHeadlines ProviderID = "newsapi-headlines"
	NYTimes          ProviderID = "nytimes"
)

// Article is the normalized article shared by everything downstream of the
// adapters. A zero PublishedAt means the provider did not report a date.
type Article struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	URL         string     `json:"url"`
	ImageURL    string     `json:"image_url,omitempty"`
	PublishedAt time.Time  `json:"published_at,omitempty"`
	SourceName  string     `json:"source_name,omitempty"`
	Source      ProviderID `json:"-"`
}

// HasPublishedAt reports whether the article carries a publication time.
func (a Article) HasPublishedAt() bool {
	return !a.PublishedAt.IsZero()
}

// rawItem is the provider-neutral intermediate every adapter fills in before
// normalization.
type rawItem struct {
	title       string
	description string
	url         string
	imageURLs   []string
	dates       []string
	sourceName  string
}

// normalize turns a rawItem into an Article. It returns false when the item
// has no title or no usable URL.
func normalize(p ProviderID, it rawItem) (Article, bool) {
	title := strings.TrimSpace(it.title)
	if title == "" {
		return Article{}, false
	}
	link := strings.TrimSpace(it.url)
	if !isAbsoluteURL(link) {
		return Article{}, false
	}
	return Article{
		Title:       title,
		Description: htmltext.Plain(it.description),
		URL:         link,
		ImageURL:    firstNonEmpty(it.imageURLs...),
		PublishedAt: parseTime(firstNonEmpty(it.dates...)),
		SourceName:  strings.TrimSpace(it.sourceName),
		Source:      p,
	}, true
}

func isAbsoluteURL(s string) bool {
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// parseTime tries the date layouts used by the supported providers. An empty
// or unrecognised value yields the zero time.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
