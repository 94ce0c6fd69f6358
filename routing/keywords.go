package routing

import (
	"strings"
	"unicode"
)

// stopWords are dropped during keyword extraction. Short function words add
// no routing signal and would inflate overlap scores.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {}, "into": {},
	"this": {}, "that": {}, "what": {}, "when": {}, "how": {}, "why": {},
	"are": {}, "was": {}, "has": {}, "have": {}, "can": {}, "should": {},
	"about": {}, "over": {}, "under": {}, "our": {}, "your": {}, "their": {},
	"please": {}, "need": {}, "want": {},
}

// ExtractKeywords lowercases and tokenizes text, dropping stop words and
// tokens shorter than three runes. Duplicates are removed; order follows
// first occurrence.
func ExtractKeywords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 3 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
