package parser

import (
	"strings"
	"unicode"
)

// BoundText truncates text to at most max bytes, cutting at the last
// sentence boundary that fits the budget. Text at or under the budget,
// or a non-positive max, comes back unchanged.
func BoundText(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}

	var b strings.Builder
	for _, sentence := range splitSentences(text) {
		if b.Len()+len(sentence) > max {
			break
		}
		b.WriteString(sentence)
	}

	bounded := strings.TrimSpace(b.String())
	if bounded == "" {
		// No sentence boundary inside the budget; fall back to the last
		// word boundary.
		cut := text[:max]
		if idx := strings.LastIndex(cut, " "); idx > 0 {
			cut = cut[:idx]
		}
		return strings.TrimSpace(cut)
	}
	return bounded
}

// splitSentences splits text into sentences.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		current.WriteRune(r)

		// Check for sentence ending
		if r == '.' || r == '!' || r == '?' {
			// Look ahead for space or end
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				// Not an initial (simple heuristic)
				if i > 1 && unicode.IsUpper(runes[i-1]) {
					continue // Likely an initial like "T."
				}
				sentences = append(sentences, current.String())
				current.Reset()
			}
		}
	}

	if current.Len() > 0 {
		sentences = append(sentences, current.String())
	}

	return sentences
}
