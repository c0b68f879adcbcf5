package analyzer

import (
	"strings"

	"github.com/orsinium-labs/stopwords"
)

// English stopword list. The library ships a fixed list, which keeps the
// analyzer a pure function of its inputs.
var englishStopwords = stopwords.MustGet("en")

// Query-domain words too generic to rank on, beyond the stock English list.
var extraStopwords = map[string]bool{
	"please": true, "want": true, "need": true, "like": true, "know": true,
	"way": true, "thing": true, "things": true, "stuff": true, "using": true,
	"use": true, "used": true, "make": true, "working": true, "work": true,
}

func isStopword(word string) bool {
	if extraStopwords[word] {
		return true
	}
	return englishStopwords.Contains(word)
}

// extractKeywords returns the content words of text: lowercased, punctuation
// stripped, stopwords removed, order of first appearance preserved.
func extractKeywords(text string) []string {
	var out []string
	seen := make(map[string]bool)

	for _, raw := range strings.Fields(strings.ToLower(text)) {
		word := strings.TrimFunc(raw, func(r rune) bool {
			return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
		})
		if len(word) < 2 || seen[word] || isStopword(word) {
			continue
		}
		seen[word] = true
		out = append(out, word)
	}
	return out
}
