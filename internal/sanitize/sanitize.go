// Package sanitize validates untrusted strings scraped from web pages before
// they are stored on a card. Rejection is not an error: every function
// reports ok=false and callers treat the field as unavailable.
package sanitize

import (
	"net/url"
	"regexp"
	"strings"
)

// whitespaceRegex matches one or more whitespace characters
var whitespaceRegex = regexp.MustCompile(`\s+`)

// Options controls URL sanitization.
type Options struct {
	// AllowData permits data: URLs
	AllowData bool
}

// Text collapses whitespace runs to a single space, trims, and truncates to
// maxLength runes. Empty or whitespace-only input is rejected.
// A maxLength <= 0 means no truncation.
func Text(raw string, maxLength int) (string, bool) {
	s := strings.TrimSpace(whitespaceRegex.ReplaceAllString(raw, " "))
	if s == "" {
		return "", false
	}
	if maxLength > 0 {
		runes := []rune(s)
		if len(runes) > maxLength {
			s = strings.TrimSpace(string(runes[:maxLength]))
		}
	}
	return s, true
}

// TextPtr is Text for optional fields.
func TextPtr(raw *string, maxLength int) (string, bool) {
	if raw == nil {
		return "", false
	}
	return Text(*raw, maxLength)
}

// URL resolves raw against baseURL and accepts only http and https (and data
// when opts.AllowData). javascript: and mailto: are always rejected.
func URL(baseURL, raw string, opts Options) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	scheme := strings.ToLower(ref.Scheme)
	switch scheme {
	case "javascript", "mailto":
		return "", false
	case "data":
		if !opts.AllowData {
			return "", false
		}
		return raw, true
	}

	resolved := ref
	if !ref.IsAbs() {
		base, err := url.Parse(strings.TrimSpace(baseURL))
		if err != nil || !base.IsAbs() {
			return "", false
		}
		resolved = base.ResolveReference(ref)
	}

	switch strings.ToLower(resolved.Scheme) {
	case "http", "https":
	default:
		return "", false
	}
	if resolved.Host == "" {
		return "", false
	}
	return resolved.String(), true
}

// ImageURL is URL with data: URLs always allowed. The data payload's media
// type is not checked.
func ImageURL(baseURL, raw string) (string, bool) {
	return URL(baseURL, raw, Options{AllowData: true})
}
