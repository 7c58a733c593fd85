package ops

import (
	"context"
	"strings"
	"unicode"

	"github.com/hpungsan/trove/internal/card"
	"github.com/hpungsan/trove/internal/classify"
	"github.com/hpungsan/trove/internal/db"
	"github.com/hpungsan/trove/internal/errors"
	"github.com/hpungsan/trove/internal/sanitize"
)

// CreateInput contains parameters for the Create operation.
type CreateInput struct {
	UserID string

	// Type is the client's guess; classification replaces it. Default: text.
	Type string

	Content      string
	URL          *string
	FileID       *string
	FileMetadata *card.FileMetadata
	Colors       []string
	Tags         []string
}

// CreateOutput contains the result of the Create operation.
type CreateOutput struct {
	ID   string     `json:"id"`
	Card *card.Card `json:"card"`

	// Classification is set when the card was classified inline.
	Classification *ClassifyOutput `json:"classification,omitempty"`
}

// Create stores a new card with an empty processing status and starts the
// pipeline.
func Create(ctx context.Context, d *Deps, input CreateInput) (*CreateOutput, error) {
	cardType := card.TypeText
	if strings.TrimSpace(input.Type) != "" {
		t, ok := card.ParseType(input.Type)
		if !ok {
			return nil, errors.NewInvalidRequest("unknown card type: " + input.Type)
		}
		cardType = t
	}

	pageURL, err := cleanURL(input.URL)
	if err != nil {
		return nil, err
	}

	c := &card.Card{
		UserID:       strings.TrimSpace(input.UserID),
		Type:         cardType,
		Content:      input.Content,
		URL:          pageURL,
		FileID:       cleanOptionalString(input.FileID),
		FileMetadata: input.FileMetadata,
		Colors:       cleanTags(input.Colors),
		Tags:         cleanTags(input.Tags),
	}
	promoteContentURL(c)
	if strings.TrimSpace(c.Content) == "" && c.URL == nil && c.FileID == nil && len(c.Colors) == 0 {
		return nil, errors.NewInvalidRequest("one of content, url, file_id or colors is required")
	}

	id, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	c.ID = id
	now := d.nowMillis()
	c.CreatedAt = now
	c.UpdatedAt = now

	if err := db.Insert(ctx, d.DB, c); err != nil {
		return nil, err
	}

	out := &CreateOutput{ID: id, Card: c}
	classified, err := d.scheduleClassify(ctx, id)
	if err != nil {
		return nil, err
	}
	if classified != nil {
		out.Classification = classified
		out.Card = classified.Card
	}
	return out, nil
}

// EditInput contains parameters for the Edit operation. Nil fields are left
// unchanged. An empty URL or file ID string clears it.
type EditInput struct {
	ID           string
	Content      *string
	URL          *string
	FileID       *string
	FileMetadata *card.FileMetadata
	Colors       []string
	Tags         []string
	IsFavorited  *bool
}

// EditOutput contains the result of the Edit operation.
type EditOutput struct {
	Card           *card.Card      `json:"card"`
	Reclassified   bool            `json:"reclassified"`
	Classification *ClassifyOutput `json:"classification,omitempty"`
}

// Edit patches a card. When any field classification reads has changed,
// the card goes back through the pipeline.
func Edit(ctx context.Context, d *Deps, input EditInput) (*EditOutput, error) {
	id, err := requireID(input.ID)
	if err != nil {
		return nil, err
	}

	var newURL *string
	if input.URL != nil && strings.TrimSpace(*input.URL) != "" {
		if newURL, err = cleanURL(input.URL); err != nil {
			return nil, err
		}
	}

	now := d.nowMillis()
	var reclassify bool

	c, err := db.Update(ctx, d.DB, id, func(c *card.Card) error {
		before := classify.SnapshotOf(c)

		if input.Content != nil {
			c.Content = *input.Content
		}
		if input.URL != nil {
			c.URL = newURL
		}
		if input.FileID != nil {
			c.FileID = cleanOptionalString(input.FileID)
		}
		if input.FileMetadata != nil {
			c.FileMetadata = input.FileMetadata
		}
		if input.Colors != nil {
			c.Colors = cleanTags(input.Colors)
		}
		if input.Tags != nil {
			c.Tags = cleanTags(input.Tags)
		}
		if input.IsFavorited != nil {
			c.IsFavorited = *input.IsFavorited
		}
		if input.Content != nil {
			promoteContentURL(c)
		}

		reclassify = classificationInputsChanged(before, classify.SnapshotOf(c))
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := &EditOutput{Card: c, Reclassified: reclassify}
	if !reclassify {
		return out, nil
	}
	classified, err := d.scheduleClassify(ctx, id)
	if err != nil {
		return nil, err
	}
	if classified != nil {
		out.Classification = classified
		out.Card = classified.Card
	}
	return out, nil
}

// classificationInputsChanged compares the fields the rule chain reads.
// Tags are excluded: no rule decides on them.
func classificationInputsChanged(a, b classify.Snapshot) bool {
	if a.Content != b.Content || a.URL != b.URL || a.FileID != b.FileID {
		return true
	}
	if (a.FileMetadata == nil) != (b.FileMetadata == nil) {
		return true
	}
	if a.FileMetadata != nil && *a.FileMetadata != *b.FileMetadata {
		return true
	}
	return strings.Join(a.Colors, "\x00") != strings.Join(b.Colors, "\x00")
}

// cleanURL validates an optional http(s) URL.
func cleanURL(raw *string) (*string, error) {
	raw = cleanOptionalString(raw)
	if raw == nil {
		return nil, nil
	}
	u, ok := sanitize.URL("", *raw, sanitize.Options{})
	if !ok {
		return nil, errors.NewInvalidRequest("url must be an absolute http or https URL")
	}
	return &u, nil
}

// promoteContentURL moves content that is a single absolute http(s) URL into
// the url field of a card with neither url nor file. Content is kept as typed.
func promoteContentURL(c *card.Card) {
	if c.URL != nil || c.FileID != nil {
		return
	}
	content := strings.TrimSpace(c.Content)
	if content == "" || strings.ContainsFunc(content, unicode.IsSpace) {
		return
	}
	u, ok := sanitize.URL("", content, sanitize.Options{})
	if !ok {
		return
	}
	c.URL = &u
}
