package catalog

import "strings"

// Haystack returns the lowercased concatenation of the searchable text
// fields of a product: title, brand, category, tags, description.
func Haystack(p Product) string {
	parts := make([]string, 0, 5)
	for _, s := range []string{p.Title, p.Brand, p.Category, strings.Join(p.Tags, " "), p.Description} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// LexicalScore returns the fraction of whitespace-tokenized, lowercased
// query terms that appear as substrings of the product haystack.
// The result is always in [0,1]; an empty query scores 0.
func LexicalScore(query string, p Product) float64 {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return 0
	}

	hay := Haystack(p)
	matched := 0
	for _, t := range terms {
		if strings.Contains(hay, t) {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}
