package card

import "strings"

// Type is the content classification of a card.
type Type string

const (
	TypeText     Type = "text"
	TypeLink     Type = "link"
	TypeImage    Type = "image"
	TypeVideo    Type = "video"
	TypeAudio    Type = "audio"
	TypeDocument Type = "document"
	TypePalette  Type = "palette"
	TypeQuote    Type = "quote"
)

// Types lists every known card type.
var Types = []Type{
	TypeText, TypeLink, TypeImage, TypeVideo,
	TypeAudio, TypeDocument, TypePalette, TypeQuote,
}

// Valid reports whether t is a known card type.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// NeedsRenderables reports whether cards of this type get a thumbnail/render step.
func (t Type) NeedsRenderables() bool {
	return t == TypeImage || t == TypeVideo || t == TypeDocument
}

// ParseType parses a case-insensitive type name. Unknown names return ok=false.
func ParseType(s string) (Type, bool) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}

// MetadataStatus tracks the link-preview fetch. Only meaningful for links.
type MetadataStatus string

const (
	MetadataUnset     MetadataStatus = ""
	MetadataPending   MetadataStatus = "pending"
	MetadataCompleted MetadataStatus = "completed"
	MetadataFailed    MetadataStatus = "failed"
)

// Terminal reports whether s is a status a metadata worker may finish with.
func (s MetadataStatus) Terminal() bool {
	return s == MetadataCompleted || s == MetadataFailed
}

// FileMetadata describes an attached file as reported by the uploader.
type FileMetadata struct {
	MimeType string  `json:"mime_type,omitempty"`
	FileName string  `json:"file_name,omitempty"`
	Size     int64   `json:"size,omitempty"`
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	Duration float64 `json:"duration,omitempty"` // seconds
}

// Card is a single saved content item, the unit of classification and enrichment.
type Card struct {
	// ID is a ULID that uniquely identifies this card
	ID string `json:"id"`

	// UserID is the owning user
	UserID string `json:"user_id"`

	// Type is the current classification
	Type Type `json:"type"`

	// Content is free text, possibly a bare URL
	Content string `json:"content"`

	URL          *string       `json:"url,omitempty"`
	FileID       *string       `json:"file_id,omitempty"`
	FileMetadata *FileMetadata `json:"file_metadata,omitempty"`

	// Colors holds hex strings for palette cards
	Colors []string `json:"colors,omitempty"`

	Tags         []string `json:"tags,omitempty"`
	AITags       []string `json:"ai_tags,omitempty"`
	AISummary    *string  `json:"ai_summary,omitempty"`
	AITranscript *string  `json:"ai_transcript,omitempty"`

	// ThumbnailID is the asset produced by the renderables stage
	ThumbnailID *string `json:"thumbnail_id,omitempty"`

	Metadata            Metadata       `json:"metadata"`
	MetadataTitle       *string        `json:"metadata_title,omitempty"`
	MetadataDescription *string        `json:"metadata_description,omitempty"`
	MetadataStatus      MetadataStatus `json:"metadata_status,omitempty"`

	ProcessingStatus ProcessingStatus `json:"processing_status"`

	IsFavorited bool `json:"is_favorited"`
	IsDeleted   bool `json:"is_deleted"`

	// CreatedAt and UpdatedAt are Unix milliseconds
	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// URLValue returns the trimmed URL, or "" when none is set.
func (c *Card) URLValue() string {
	if c.URL == nil {
		return ""
	}
	return strings.TrimSpace(*c.URL)
}

// HasURL reports whether the card carries a non-empty URL.
func (c *Card) HasURL() bool {
	return c.URLValue() != ""
}

// HasFile reports whether the card carries a file reference.
func (c *Card) HasFile() bool {
	return c.FileID != nil && strings.TrimSpace(*c.FileID) != ""
}

// ClampConfidence bounds a confidence value to [0,1].
func ClampConfidence(v float64) float64 {
	if v != v { // NaN
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
