// Package htmltext reduces HTML fragments, as found in news descriptions and
// feed summaries, to readable plain text.
package htmltext

import (
	"strings"

	"golang.org/x/net/html"
)

// skipTags are elements whose content is never user-visible prose.
var skipTags = map[string]bool{
	"script": true, "style": true, "noscript": true,
	"svg": true, "iframe": true, "head": true,
}

// blockTags break the text flow when converted to plain text.
var blockTags = map[string]bool{
	"br": true, "p": true, "div": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true,
}

// Plain converts an HTML fragment to single-spaced plain text. Entities are
// decoded. Input without markup is only whitespace-normalized.
func Plain(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return collapse(s)
	}
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return collapse(s)
	}
	var sb strings.Builder
	extract(doc, &sb)
	return collapse(sb.String())
}

// Truncate shortens s to at most n runes, ending with an ellipsis when cut.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if n <= 0 || len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return strings.TrimSpace(string(runes[:n-3])) + "..."
}

func extract(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode {
		if skipTags[n.Data] {
			return
		}
		if blockTags[n.Data] {
			sb.WriteString(" ")
		}
	}
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extract(c, sb)
	}
	if n.Type == html.ElementNode && blockTags[n.Data] {
		sb.WriteString(" ")
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
