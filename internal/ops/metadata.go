package ops

import (
	"context"
	"encoding/json"

	"github.com/hpungsan/trove/internal/card"
	"github.com/hpungsan/trove/internal/db"
	"github.com/hpungsan/trove/internal/errors"
	"github.com/hpungsan/trove/internal/sanitize"
)

// MergeLinkMetadataInput contains parameters for the MergeLinkMetadata operation.
type MergeLinkMetadataInput struct {
	ID        string
	Candidate card.LinkPreview

	// Status is the terminal metadata status to record: completed or failed.
	Status card.MetadataStatus
}

// MergeOutput contains the result of a metadata merge.
type MergeOutput struct {
	ID string `json:"id"`

	// Applied is false when the card no longer exists.
	Applied bool `json:"applied"`

	// Released lists superseded asset IDs that were deleted from storage.
	Released []string   `json:"released,omitempty"`
	Card     *card.Card `json:"card,omitempty"`
}

// MergeLinkMetadata folds a freshly scraped link preview into the stored
// one. Text fields come from the candidate after sanitization. The image
// and screenshot slots are merged independently so a candidate without an
// asset never wipes a stored one. Assets replaced by the merge are deleted
// after the write commits.
func MergeLinkMetadata(ctx context.Context, d *Deps, input MergeLinkMetadataInput) (*MergeOutput, error) {
	id, err := requireID(input.ID)
	if err != nil {
		return nil, err
	}
	if !input.Status.Terminal() {
		return nil, errors.NewInvalidRequest("status must be completed or failed")
	}

	now := d.nowMillis()
	var superseded []string

	c, err := db.Update(ctx, d.DB, id, func(c *card.Card) error {
		superseded = superseded[:0]

		stored := c.Metadata.LinkPreview
		if stored == nil {
			stored = &card.LinkPreview{}
		}
		merged := sanitizePreview(input.Candidate, c.URLValue())
		if merged.Status == "" {
			merged.Status = card.PreviewSuccess
			if input.Status == card.MetadataFailed {
				merged.Status = card.PreviewError
			}
		}
		if merged.FetchedAt == 0 {
			merged.FetchedAt = now
		}
		merged.Extra = mergeExtra(stored.Extra, input.Candidate.Extra)

		img, old := mergeSlot(imageSlot(stored), imageSlot(&input.Candidate), now)
		setImageSlot(&merged, img)
		if old != "" {
			superseded = append(superseded, old)
		}

		shot, old := mergeSlot(screenshotSlot(stored), screenshotSlot(&input.Candidate), now)
		setScreenshotSlot(&merged, shot)
		if old != "" {
			superseded = append(superseded, old)
		}

		c.Metadata.LinkPreview = &merged
		c.MetadataTitle = optional(merged.Title)
		c.MetadataDescription = optional(merged.Description)
		if c.Type == card.TypeLink {
			c.MetadataStatus = input.Status
		}
		c.UpdatedAt = now
		return nil
	})
	if errors.Is(err, errors.ErrNotFound) {
		d.Metrics.MetadataMerged("preview", "missing")
		return &MergeOutput{ID: id}, nil
	}
	if err != nil {
		return nil, err
	}

	out := &MergeOutput{ID: id, Applied: true, Card: c}
	for _, assetID := range superseded {
		if d.releaseAsset(ctx, id, assetID) {
			out.Released = append(out.Released, assetID)
		}
	}
	d.Metrics.MetadataMerged("preview", string(input.Status))
	return out, nil
}

// MergeScreenshotInput contains parameters for the MergeScreenshot operation.
type MergeScreenshotInput struct {
	ID        string
	StorageID string
	Width     int
	Height    int
	UpdatedAt int64
}

// MergeScreenshot records a page screenshot using the screenshot slot rules
// alone. Every other preview field is left as stored.
func MergeScreenshot(ctx context.Context, d *Deps, input MergeScreenshotInput) (*MergeOutput, error) {
	id, err := requireID(input.ID)
	if err != nil {
		return nil, err
	}

	now := d.nowMillis()
	var superseded string

	c, err := db.Update(ctx, d.DB, id, func(c *card.Card) error {
		preview := c.Metadata.LinkPreview
		if preview == nil {
			preview = &card.LinkPreview{}
		}
		merged := *preview

		shot, old := mergeSlot(screenshotSlot(preview), slot{
			ID:        input.StorageID,
			Width:     input.Width,
			Height:    input.Height,
			UpdatedAt: input.UpdatedAt,
		}, now)
		setScreenshotSlot(&merged, shot)
		superseded = old

		c.Metadata.LinkPreview = &merged
		c.UpdatedAt = now
		return nil
	})
	if errors.Is(err, errors.ErrNotFound) {
		d.Metrics.MetadataMerged("screenshot", "missing")
		return &MergeOutput{ID: id}, nil
	}
	if err != nil {
		return nil, err
	}

	out := &MergeOutput{ID: id, Applied: true, Card: c}
	if d.releaseAsset(ctx, id, superseded) {
		out.Released = append(out.Released, superseded)
	}
	d.Metrics.MetadataMerged("screenshot", "applied")
	return out, nil
}

// slot is one asset reference with its dimensions.
type slot struct {
	ID        string
	Width     int
	Height    int
	UpdatedAt int64
}

// mergeSlot applies the asset slot rules and returns the merged slot plus
// the stored asset ID it superseded, if any.
func mergeSlot(stored, candidate slot, now int64) (slot, string) {
	switch {
	case candidate.ID == "":
		return stored, ""
	case candidate.ID != stored.ID:
		if candidate.UpdatedAt == 0 {
			candidate.UpdatedAt = now
		}
		return candidate, stored.ID
	}

	// Same reference: known dimensions win, gaps are filled from the candidate.
	merged := stored
	if merged.Width == 0 {
		merged.Width = candidate.Width
	}
	if merged.Height == 0 {
		merged.Height = candidate.Height
	}
	if merged.UpdatedAt == 0 {
		merged.UpdatedAt = candidate.UpdatedAt
	}
	return merged, ""
}

func imageSlot(p *card.LinkPreview) slot {
	return slot{ID: p.ImageStorageID, Width: p.ImageWidth, Height: p.ImageHeight, UpdatedAt: p.ImageUpdatedAt}
}

func setImageSlot(p *card.LinkPreview, s slot) {
	p.ImageStorageID, p.ImageWidth, p.ImageHeight, p.ImageUpdatedAt = s.ID, s.Width, s.Height, s.UpdatedAt
}

func screenshotSlot(p *card.LinkPreview) slot {
	return slot{ID: p.ScreenshotStorageID, Width: p.ScreenshotWidth, Height: p.ScreenshotHeight, UpdatedAt: p.ScreenshotUpdatedAt}
}

func setScreenshotSlot(p *card.LinkPreview, s slot) {
	p.ScreenshotStorageID, p.ScreenshotWidth, p.ScreenshotHeight, p.ScreenshotUpdatedAt = s.ID, s.Width, s.Height, s.UpdatedAt
}

// sanitizePreview copies the candidate's text and URL fields through the
// sanitizers. Rejected values become empty. Asset slots are left zero.
func sanitizePreview(cand card.LinkPreview, pageURL string) card.LinkPreview {
	base := pageURL
	out := card.LinkPreview{
		Status:    cand.Status,
		FetchedAt: cand.FetchedAt,
	}
	if out.Status != card.PreviewSuccess && out.Status != card.PreviewError {
		out.Status = ""
	}

	if u, ok := sanitize.URL(base, cand.URL, sanitize.Options{}); ok {
		out.URL = u
		base = u
	}
	out.Title, _ = sanitize.Text(cand.Title, MaxTitleChars)
	out.Description, _ = sanitize.Text(cand.Description, MaxDescriptionChars)
	out.SiteName, _ = sanitize.Text(cand.SiteName, MaxSiteNameChars)
	out.Error, _ = sanitize.Text(cand.Error, MaxErrorChars)
	out.FaviconURL, _ = sanitize.ImageURL(base, cand.FaviconURL)
	out.ImageURL, _ = sanitize.ImageURL(base, cand.ImageURL)
	return out
}

// mergeExtra overlays candidate keys on the stored ones.
func mergeExtra(stored, candidate map[string]json.RawMessage) map[string]json.RawMessage {
	if len(stored) == 0 && len(candidate) == 0 {
		return nil
	}
	out := make(map[string]json.RawMessage, len(stored)+len(candidate))
	for k, v := range stored {
		out[k] = v
	}
	for k, v := range candidate {
		out[k] = v
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
