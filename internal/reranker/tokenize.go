package reranker

import (
	"strings"
	"unicode"
)

// minTokenLen drops short tokens such as loop variables.
const minTokenLen = 3

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "but": {}, "for": {}, "with": {}, "from": {},
	"was": {}, "are": {}, "been": {}, "being": {}, "have": {}, "has": {},
	"had": {}, "does": {}, "did": {}, "will": {}, "would": {}, "could": {},
	"should": {}, "may": {}, "might": {}, "can": {}, "this": {}, "that": {},
	"these": {}, "those": {}, "you": {}, "she": {}, "they": {}, "what": {},
	"which": {}, "who": {}, "when": {}, "where": {}, "why": {}, "how": {},
}

// Tokenize lowercases text and splits it into words and identifier parts.
// A compound identifier yields both its parts and its whole form:
// "parseConfigFile" gives "parse", "config", "file" and "parseconfigfile".
// Stopwords and tokens shorter than three characters are dropped.
func Tokenize(text string) []string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})

	var tokens []string
	add := func(t string) {
		t = strings.ToLower(t)
		if len(t) < minTokenLen {
			return
		}
		if _, stop := stopwords[t]; stop {
			return
		}
		tokens = append(tokens, t)
	}

	for _, w := range words {
		parts := splitIdentifier(w)
		for _, p := range parts {
			add(p)
		}
		if len(parts) > 1 {
			add(strings.ReplaceAll(w, "_", ""))
		}
	}
	return tokens
}

// splitIdentifier splits on underscores and on lower-to-upper case changes.
// An acronym run stays together: "HTTPServer" gives "HTTP" and "Server".
func splitIdentifier(word string) []string {
	var parts []string
	for _, seg := range strings.Split(word, "_") {
		runes := []rune(seg)
		start := 0
		for i := 1; i < len(runes); i++ {
			prev, cur := runes[i-1], runes[i]
			lowerToUpper := unicode.IsLower(prev) && unicode.IsUpper(cur)
			acronymEnd := unicode.IsUpper(prev) && unicode.IsUpper(cur) &&
				i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if lowerToUpper || acronymEnd {
				parts = append(parts, string(runes[start:i]))
				start = i
			}
		}
		if start < len(runes) {
			parts = append(parts, string(runes[start:]))
		}
	}
	return parts
}
