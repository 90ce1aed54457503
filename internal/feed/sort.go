package feed

import (
	"sort"
	"strings"
)

// SortOrder selects the direction of the publication-time ordering.
type SortOrder string

const (
	Newest SortOrder = "newest"
	Oldest SortOrder = "oldest"
)

// ParseSortOrder accepts "newest" or "oldest" in any case. Anything else,
// including the empty string, falls back to Newest with ok == false.
func ParseSortOrder(s string) (order SortOrder, ok bool) {
	switch SortOrder(strings.ToLower(strings.TrimSpace(s))) {
	case Newest:
		return Newest, true
	case Oldest:
		return Oldest, true
	default:
		return Newest, false
	}
}

// Sort returns a copy of articles ordered by PublishedAt. Articles without a
// publication time always come last; ties keep their input order.
func Sort(articles []Article, order SortOrder) []Article {
	out := make([]Article, len(articles))
	copy(out, articles)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.HasPublishedAt() || !b.HasPublishedAt() {
			return a.HasPublishedAt() && !b.HasPublishedAt()
		}
		if order == Oldest {
			return a.PublishedAt.Before(b.PublishedAt)
		}
		return a.PublishedAt.After(b.PublishedAt)
	})
	return out
}
