// Package prefs stores each reader's preferred news categories, chosen during
// onboarding and read by the feed engine when the "All" category is selected.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/RobinCoderZhao/optimist-daily/internal/feed"
)

var (
	ErrEmptySelection  = errors.New("select at least one category")
	ErrUnknownCategory = errors.New("unknown category")
)

// Store persists category preferences per user.
type Store interface {
	// GetCategories returns the stored categories, or nil when the user
	// has none.
	GetCategories(ctx context.Context, userID int) ([]string, error)

	// SetCategories replaces the stored categories.
	SetCategories(ctx context.Context, userID int, categories []string) error
}

// Categories is the onboarding catalogue, in display order.
var Categories = []string{
	"Politics",
	"Business",
	"International",
	"Local",
	"National",
	"Crime",
	"Entertainment",
	"Lifestyle",
	"Sports",
	"Science and Technology",
	"Health",
}

// Catalogue returns the selectable filter categories: "All" followed by the
// onboarding catalogue.
func Catalogue() []string {
	return append([]string{feed.AllCategories}, Categories...)
}

// Validate normalizes a selection to catalogue spelling and removes
// duplicates while keeping the first occurrence's position.
func Validate(categories []string) ([]string, error) {
	known := make(map[string]string, len(Categories))
	for _, c := range Categories {
		known[strings.ToLower(c)] = c
	}

	seen := make(map[string]bool, len(categories))
	out := make([]string, 0, len(categories))
	for _, c := range categories {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		canonical, ok := known[strings.ToLower(c)]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, c)
		}
		if seen[canonical] {
			continue
		}
		seen[canonical] = true
		out = append(out, canonical)
	}
	if len(out) == 0 {
		return nil, ErrEmptySelection
	}
	return out, nil
}

// Source adapts a Store to the per-user preference loader a session uses.
func Source(store Store, userID int) func(ctx context.Context) ([]string, error) {
	return func(ctx context.Context) ([]string, error) {
		return store.GetCategories(ctx, userID)
	}
}
