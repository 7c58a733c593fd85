package classify

import (
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode"

	"github.com/hpungsan/trove/internal/card"
)

var (
	imageExtensions = map[string]bool{
		".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
		".svg": true, ".bmp": true, ".avif": true, ".heic": true, ".tif": true, ".tiff": true,
	}
	videoExtensions = map[string]bool{
		".mp4": true, ".mov": true, ".webm": true, ".mkv": true, ".avi": true, ".m4v": true,
	}
	audioExtensions = map[string]bool{
		".mp3": true, ".wav": true, ".ogg": true, ".m4a": true, ".flac": true, ".aac": true, ".opus": true,
	}

	documentMIMETypes = map[string]bool{
		"application/pdf":    true,
		"application/msword": true,
		"application/rtf":    true,
		"text/rtf":           true,
	}
	documentMIMEPrefixes = []string{
		"application/vnd.openxmlformats-officedocument.",
		"application/vnd.ms-excel",
		"application/vnd.ms-powerpoint",
		"application/vnd.oasis.opendocument.",
	}
)

// matchMIME maps the primary MIME category of an attached file.
func matchMIME(s Snapshot) (card.Type, float64, string, bool) {
	if s.FileMetadata == nil {
		return "", 0, "", false
	}
	mime := normalizeMIME(s.FileMetadata.MimeType)
	if mime == "" {
		return "", 0, "", false
	}

	switch {
	case strings.HasPrefix(mime, "image/"):
		return card.TypeImage, mimeConfidence, "file MIME type " + mime, true
	case strings.HasPrefix(mime, "video/"):
		return card.TypeVideo, mimeConfidence, "file MIME type " + mime, true
	case strings.HasPrefix(mime, "audio/"):
		return card.TypeAudio, mimeConfidence, "file MIME type " + mime, true
	case isDocumentMIME(mime):
		return card.TypeDocument, mimeConfidence, "file MIME type " + mime, true
	}
	return "", 0, "", false
}

func normalizeMIME(mime string) string {
	mime, _, _ = strings.Cut(mime, ";")
	return strings.ToLower(strings.TrimSpace(mime))
}

func isDocumentMIME(mime string) bool {
	if documentMIMETypes[mime] {
		return true
	}
	for _, prefix := range documentMIMEPrefixes {
		if strings.HasPrefix(mime, prefix) {
			return true
		}
	}
	return false
}

// matchDimensions infers a media type from width/height/duration when no
// MIME type was reported.
func matchDimensions(s Snapshot) (card.Type, float64, string, bool) {
	fm := s.FileMetadata
	if fm == nil || normalizeMIME(fm.MimeType) != "" {
		return "", 0, "", false
	}
	hasSize := fm.Width > 0 && fm.Height > 0
	hasDuration := fm.Duration > 0

	switch {
	case hasSize && hasDuration:
		return card.TypeVideo, dimensionConfidence, "file has dimensions and duration", true
	case hasDuration:
		return card.TypeAudio, dimensionConfidence, "file has duration only", true
	case hasSize:
		return card.TypeImage, dimensionConfidence, "file has dimensions only", true
	}
	return "", 0, "", false
}

// matchFileFallback treats an attachment with no MIME, dimension or URL
// signal as a document.
func matchFileFallback(s Snapshot) (card.Type, float64, string, bool) {
	if s.FileID == "" {
		return "", 0, "", false
	}
	return card.TypeDocument, fileFallbackConfidence, "attached file of unrecognized type", true
}

// matchURLExtension inspects the URL path's file extension; any other URL is a link.
func matchURLExtension(s Snapshot) (card.Type, float64, string, bool) {
	if s.URL == "" {
		return "", 0, "", false
	}
	ext := urlExtension(s.URL)
	switch {
	case imageExtensions[ext]:
		return card.TypeImage, extensionConfidence, "URL extension " + ext, true
	case videoExtensions[ext]:
		return card.TypeVideo, extensionConfidence, "URL extension " + ext, true
	case audioExtensions[ext]:
		return card.TypeAudio, extensionConfidence, "URL extension " + ext, true
	}
	return card.TypeLink, linkFallbackConfidence, "URL without media extension", true
}

func urlExtension(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	return strings.ToLower(path.Ext(p))
}

// matchPalette requires at least one extractable color.
func matchPalette(s Snapshot) (card.Type, float64, string, bool) {
	if len(ExtractColors(s.Content)) > 0 {
		return card.TypePalette, paletteConfidence, "content contains color codes", true
	}
	for _, c := range s.Colors {
		if hexColorRegex.MatchString("#" + strings.TrimPrefix(strings.TrimSpace(c), "#")) {
			return card.TypePalette, paletteConfidence, "card carries a color list", true
		}
	}
	return "", 0, "", false
}

// matchQuote recognizes text wrapped in one matching pair of quotes.
func matchQuote(s Snapshot) (card.Type, float64, string, bool) {
	if _, ok := card.ParseQuote(s.Content); !ok {
		return "", 0, "", false
	}
	return card.TypeQuote, quoteConfidence, "content is wrapped in quotes", true
}

// hexColorRegex matches #rgb, #rgba, #rrggbb and #rrggbbaa.
var hexColorRegex = regexp.MustCompile(`#(?:[0-9a-fA-F]{8}|[0-9a-fA-F]{6}|[0-9a-fA-F]{3,4})\b`)

// colorNames are the named colors recognized as palette tokens.
var colorNames = map[string]bool{
	"red": true, "orange": true, "yellow": true, "green": true, "blue": true,
	"purple": true, "pink": true, "brown": true, "black": true, "white": true,
	"gray": true, "grey": true, "cyan": true, "magenta": true, "teal": true,
	"navy": true, "maroon": true, "olive": true, "lime": true, "aqua": true,
	"fuchsia": true, "silver": true, "gold": true, "beige": true, "coral": true,
	"crimson": true, "indigo": true, "ivory": true, "khaki": true, "lavender": true,
	"salmon": true, "turquoise": true, "violet": true, "plum": true, "tan": true,
	"mint": true,
}

// paletteFillers may appear alongside color names without disqualifying them.
var paletteFillers = map[string]bool{
	"palette": true, "colors": true, "colours": true, "and": true,
}

// ExtractColors returns the hex codes in content, lowercased. If content has
// none, color names count only when every word in content is a color name
// or a palette filler word ("red, teal and navy" qualifies; "the sky is
// blue" does not).
func ExtractColors(content string) []string {
	var colors []string
	for _, m := range hexColorRegex.FindAllString(content, -1) {
		colors = append(colors, strings.ToLower(m))
	}
	if len(colors) > 0 {
		return colors
	}

	words := strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	var names []string
	for _, w := range words {
		switch {
		case colorNames[w]:
			names = append(names, w)
		case paletteFillers[w]:
		default:
			return nil
		}
	}
	return names
}
