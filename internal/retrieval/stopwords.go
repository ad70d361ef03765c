package retrieval

import (
	"strings"
	"unicode"
)

// #region stopwords
// stopwords are excluded from purpose matching. Besides common English
// filler this covers the courtesy words agents tend to put in purposes.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"be": true, "and": true, "or": true, "but": true, "if": true,
	"as": true, "at": true, "by": true, "for": true, "from": true,
	"in": true, "into": true, "of": true, "on": true, "to": true,
	"with": true, "this": true, "that": true, "it": true, "its": true,
	"my": true, "our": true, "your": true, "we": true, "us": true,
	"please": true, "thanks": true, "thank": true, "kindly": true,
	"via": true, "per": true, "re": true, "pay": true, "send": true,
	"transfer": true, "amount": true,
}

// Keywords splits text into unique lowercase non-stopword tokens. Digits
// are kept so invoice and order numbers match.
func Keywords(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool)
	var tokens []string
	for _, w := range words {
		if len(w) < 2 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		tokens = append(tokens, w)
	}
	return tokens
}

// SharedKeywords returns the count of tokens present in both slices.
func SharedKeywords(a, b []string) int {
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	count := 0
	for _, t := range b {
		if set[t] {
			count++
		}
	}
	return count
}

// #endregion stopwords
