// Package classify decides a card's type from whatever fields it carries.
//
// Classification is an ordered chain of pure rules evaluated against an
// immutable Snapshot; the first rule that matches wins. The chain never
// fails: when nothing stronger applies the card is text.
package classify

import (
	"strings"

	"github.com/hpungsan/trove/internal/card"
	"github.com/hpungsan/trove/internal/sanitize"
)

// Confidence levels assigned by the rules.
const (
	mimeConfidence          = 0.95
	dimensionConfidence     = 0.85
	fileFallbackConfidence  = 0.6
	extensionConfidence     = 0.9
	linkFallbackConfidence  = 0.85
	paletteConfidence       = 0.88
	quoteConfidence         = 0.95
	textConfidence          = 0.6
	urlOnlyConfidence       = 1.0
	stickyDefaultConfidence = 0.95
)

// RuleName identifies which rule produced a decision.
type RuleName string

const (
	RuleSticky       RuleName = "sticky"
	RuleMIME         RuleName = "mime"
	RuleDimensions   RuleName = "dimensions"
	RuleFileFallback RuleName = "file_fallback"
	RuleURLExtension RuleName = "url_extension"
	RulePalette      RuleName = "palette"
	RuleQuote        RuleName = "quote"
	RuleDefault      RuleName = "default"
	RuleURLOnly      RuleName = "url_only"
)

// Snapshot is the read-only view of a card that classification works from.
type Snapshot struct {
	StoredType       card.Type
	StoredConfidence *float64

	Content      string
	URL          string
	FileID       string
	FileMetadata *card.FileMetadata
	Colors       []string

	// Tags never drive a rule on their own; a "palette" tag with no
	// extractable colors is still text.
	Tags []string

	LinkPreviewStatus card.LinkPreviewStatus
}

// SnapshotOf captures the fields of c that classification reads.
func SnapshotOf(c *card.Card) Snapshot {
	s := Snapshot{
		StoredType:        c.Type,
		Content:           c.Content,
		URL:               c.URLValue(),
		FileMetadata:      c.FileMetadata,
		Colors:            c.Colors,
		Tags:              c.Tags,
		LinkPreviewStatus: c.Metadata.PreviewStatus(),
	}
	if c.HasFile() {
		s.FileID = strings.TrimSpace(*c.FileID)
	}
	if st := c.ProcessingStatus.Classify; st != nil && st.Confidence != nil {
		conf := *st.Confidence
		s.StoredConfidence = &conf
	}
	return s
}

// Decision is the outcome of classification.
type Decision struct {
	Type       card.Type `json:"type"`
	Confidence float64   `json:"confidence"`
	Rule       RuleName  `json:"rule"`
	Reason     string    `json:"reason"`

	// Sticky decisions are returned as-is and must not be committed.
	Sticky bool `json:"sticky"`

	ShouldCategorize          bool `json:"should_categorize"`
	ShouldGenerateMetadata    bool `json:"should_generate_metadata"`
	ShouldGenerateRenderables bool `json:"should_generate_renderables"`
	NeedsLinkMetadata         bool `json:"needs_link_metadata"`
}

// Rule is one step of the chain.
type Rule struct {
	Name RuleName

	// FileDerived rules read the attached file; the URL-only override
	// never replaces their answer.
	FileDerived bool

	Match func(s Snapshot) (card.Type, float64, string, bool)
}

// Chain is the ordered rule list. Earlier rules win.
var Chain = []Rule{
	{Name: RuleMIME, FileDerived: true, Match: matchMIME},
	{Name: RuleDimensions, FileDerived: true, Match: matchDimensions},
	{Name: RuleURLExtension, Match: matchURLExtension},
	{Name: RuleFileFallback, FileDerived: true, Match: matchFileFallback},
	{Name: RulePalette, Match: contentOnly(matchPalette)},
	{Name: RuleQuote, Match: contentOnly(matchQuote)},
	{Name: RuleDefault, Match: matchDefault},
}

// Classify runs the stickiness check, then the rule chain, then the
// URL-only override, and derives workflow flags from the final type.
func Classify(s Snapshot) Decision {
	if isSticky(s) {
		conf := stickyDefaultConfidence
		if s.StoredConfidence != nil {
			conf = *s.StoredConfidence
		}
		return Decision{
			Type:       card.TypeQuote,
			Confidence: card.ClampConfidence(conf),
			Rule:       RuleSticky,
			Reason:     "quote classification is kept until a URL or file is attached",
			Sticky:     true,
		}
	}

	d := evaluate(s)
	d.Confidence = card.ClampConfidence(d.Confidence)
	d.ShouldCategorize = d.Type == card.TypeLink
	d.ShouldGenerateMetadata = true
	d.ShouldGenerateRenderables = d.Type.NeedsRenderables()
	d.NeedsLinkMetadata = d.Type == card.TypeLink && s.LinkPreviewStatus != card.PreviewSuccess
	return d
}

func isSticky(s Snapshot) bool {
	return s.StoredType == card.TypeQuote && s.URL == "" && s.FileID == ""
}

func evaluate(s Snapshot) Decision {
	var d Decision
	var fileDerived bool
	for _, rule := range Chain {
		typ, conf, reason, ok := rule.Match(s)
		if !ok {
			continue
		}
		d = Decision{Type: typ, Confidence: conf, Rule: rule.Name, Reason: reason}
		fileDerived = rule.FileDerived
		break
	}

	if s.URL != "" && !fileDerived && s.FileID == "" && isURLOnly(s) {
		return Decision{
			Type:       card.TypeLink,
			Confidence: urlOnlyConfidence,
			Rule:       RuleURLOnly,
			Reason:     "content is fully explained by its URL",
		}
	}
	return d
}

// isURLOnly reports whether content is empty or exactly the URL. Stored
// URLs are normalized, so content is compared in its normalized form too.
func isURLOnly(s Snapshot) bool {
	content := strings.TrimSpace(s.Content)
	if content == "" || content == s.URL {
		return true
	}
	normalized, ok := sanitize.URL("", content, sanitize.Options{})
	return ok && normalized == s.URL
}

// contentOnly restricts a rule to cards with neither URL nor file.
func contentOnly(match func(Snapshot) (card.Type, float64, string, bool)) func(Snapshot) (card.Type, float64, string, bool) {
	return func(s Snapshot) (card.Type, float64, string, bool) {
		if s.URL != "" || s.FileID != "" {
			return "", 0, "", false
		}
		return match(s)
	}
}

func matchDefault(Snapshot) (card.Type, float64, string, bool) {
	return card.TypeText, textConfidence, "no stronger signal", true
}
