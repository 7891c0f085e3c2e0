package catalog

import (
	"strings"
	"unicode"
)

// stopwords are filler terms dropped from shopper queries before matching.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "any": {}, "are": {}, "be": {}, "best": {},
	"budget": {}, "buy": {}, "can": {}, "do": {}, "find": {}, "for": {},
	"get": {}, "good": {}, "have": {}, "i": {}, "in": {}, "is": {}, "it": {},
	"less": {}, "like": {}, "looking": {}, "me": {}, "more": {}, "my": {},
	"need": {}, "no": {}, "not": {}, "of": {}, "on": {}, "or": {}, "please": {},
	"show": {}, "some": {}, "than": {}, "that": {}, "the": {}, "this": {},
	"to": {}, "under": {}, "want": {}, "with": {}, "would": {}, "you": {},
}

// QueryTerms tokenizes a shopper query into match-worthy terms: lowercased,
// punctuation-split, with stopwords and bare numbers removed. "I want to buy
// a smartwatch and my budget is not more than 500" yields ["smartwatch"].
func QueryTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, stop := stopwords[f]; stop {
			continue
		}
		if isNumber(f) {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(s) > 0
}
