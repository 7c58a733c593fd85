package card

import (
	"strings"
	"unicode"
)

// Quote is a parsed quotation: the quoted text and an optional attribution
// suffix exactly as written (e.g. " - Horace").
type Quote struct {
	Text        string
	Attribution string
}

// attributionDashes introduce an attribution after the closing quote.
var attributionDashes = []string{"-", "–", "—", "~"}

// ParseQuote recognizes content wrapped in one matching pair of straight
// double or single quotes, optionally followed by an attribution.
// Markdown blockquotes ("> text") are not quotes.
func ParseQuote(content string) (Quote, bool) {
	s := strings.TrimSpace(content)
	if len(s) < 3 {
		return Quote{}, false
	}
	mark := s[0]
	if mark != '"' && mark != '\'' {
		return Quote{}, false
	}

	closing := strings.IndexByte(s[1:], mark)
	if closing < 0 {
		return Quote{}, false
	}
	closing++ // index in s

	text := s[1:closing]
	if strings.TrimSpace(text) == "" {
		return Quote{}, false
	}

	rest := s[closing+1:]
	if rest == "" {
		return Quote{Text: text}, true
	}
	if !isAttribution(rest) {
		return Quote{}, false
	}
	return Quote{Text: text, Attribution: rest}, true
}

// isAttribution reports whether s looks like " - Author".
func isAttribution(s string) bool {
	trimmed := strings.TrimLeftFunc(s, unicode.IsSpace)
	for _, dash := range attributionDashes {
		if after, ok := strings.CutPrefix(trimmed, dash); ok {
			return strings.TrimSpace(after) != ""
		}
	}
	return false
}

// StripWrappingQuotes removes one matching pair of straight quotes from
// content, keeping any attribution. Content that is not a quote is returned
// unchanged.
func StripWrappingQuotes(content string) string {
	q, ok := ParseQuote(content)
	if !ok {
		return content
	}
	return q.Text + q.Attribution
}
