package feed

import (
	"fmt"
	"strings"
)

// AllCategories is the pseudo category that selects the reader's stored
// preferences instead of a single category.
const AllCategories = "All"

// Mode is the kind of query a user intent resolves to.
type Mode int

const (
	ModeAllGeneric Mode = iota
	ModeAllPreferred
	ModeCategorySet
	ModeSearchTerm
)

func (m Mode) String() string {
	switch m {
	case ModeSearchTerm:
		return "search"
	case ModeCategorySet:
		return "category"
	case ModeAllPreferred:
		return "preferred"
	default:
		return "generic"
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "search":
		*m = ModeSearchTerm
	case "category":
		*m = ModeCategorySet
	case "preferred":
		*m = ModeAllPreferred
	case "generic":
		*m = ModeAllGeneric
	default:
		return fmt.Errorf("unknown intent mode %q", b)
	}
	return nil
}

// Intent is the single logical query handed to every adapter.
type Intent struct {
	Mode       Mode     `json:"mode"`
	Text       string   `json:"text,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

// Keywords renders the intent as a flat keyword string: the search text,
// the categories joined with OR, or "" for a generic query.
func (i Intent) Keywords() string {
	switch i.Mode {
	case ModeSearchTerm:
		return i.Text
	case ModeCategorySet, ModeAllPreferred:
		return strings.Join(i.Categories, " OR ")
	default:
		return ""
	}
}

func (i Intent) String() string {
	switch i.Mode {
	case ModeSearchTerm:
		return fmt.Sprintf("search(%q)", i.Text)
	case ModeCategorySet, ModeAllPreferred:
		return fmt.Sprintf("%s(%s)", i.Mode, strings.Join(i.Categories, ", "))
	default:
		return "generic"
	}
}

// Equal reports whether two intents describe the same query.
func (i Intent) Equal(o Intent) bool {
	if i.Mode != o.Mode || i.Text != o.Text || len(i.Categories) != len(o.Categories) {
		return false
	}
	for n := range i.Categories {
		if i.Categories[n] != o.Categories[n] {
			return false
		}
	}
	return true
}

// Plan derives the query intent from the reader's inputs. Precedence is fixed:
// search text, then a specific category, then stored preferences, then a
// generic top-headlines query.
func Plan(searchText, selectedCategory string, prefs []string) Intent {
	if text := strings.TrimSpace(searchText); text != "" {
		return Intent{Mode: ModeSearchTerm, Text: text}
	}

	category := strings.TrimSpace(selectedCategory)
	if category != "" && !strings.EqualFold(category, AllCategories) {
		return Intent{Mode: ModeCategorySet, Categories: []string{category}}
	}

	var cats []string
	for _, p := range prefs {
		if p = strings.TrimSpace(p); p != "" {
			cats = append(cats, p)
		}
	}
	if len(cats) > 0 {
		return Intent{Mode: ModeAllPreferred, Categories: cats}
	}
	return Intent{Mode: ModeAllGeneric}
}
