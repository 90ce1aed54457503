package feed

// Dedupe collapses articles sharing a URL into one entry. The last occurrence
// supplies the values; the entry keeps the slot of the first occurrence.
func Dedupe(articles []Article) []Article {
	index := make(map[string]int, len(articles))
	out := make([]Article, 0, len(articles))
	for _, a := range articles {
		if i, seen := index[a.URL]; seen {
			out[i] = a
			continue
		}
		index[a.URL] = len(out)
		out = append(out, a)
	}
	return out
}
