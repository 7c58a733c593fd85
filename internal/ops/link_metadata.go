package ops

import (
	"context"
	"time"

	"github.com/hpungsan/trove/internal/card"
	"github.com/hpungsan/trove/internal/db"
	"github.com/hpungsan/trove/internal/errors"
	"github.com/hpungsan/trove/internal/logger"
)

// Scraper fetches a page and builds a link preview candidate. Assets it
// stores are referenced by ImageStorageID/ScreenshotStorageID.
type Scraper interface {
	Scrape(ctx context.Context, pageURL string) (*card.LinkPreview, error)
}

// FetchLinkMetadataInput contains parameters for the FetchLinkMetadata operation.
type FetchLinkMetadataInput struct {
	ID string

	// Force re-fetches a preview that already succeeded.
	Force bool
}

// FetchLinkMetadataOutput contains the result of the FetchLinkMetadata operation.
type FetchLinkMetadataOutput struct {
	ID      string          `json:"id"`
	Status  card.StageState `json:"status"`
	Skipped bool            `json:"skipped"`
	Reason  string          `json:"reason,omitempty"`
	Merge   *MergeOutput    `json:"merge,omitempty"`
}

// FetchLinkMetadata runs the metadata stage for one card: claim, scrape,
// merge, then complete or fail. Non-link cards and links whose preview
// already succeeded complete without scraping.
func FetchLinkMetadata(ctx context.Context, d *Deps, scraper Scraper, input FetchLinkMetadataInput) (*FetchLinkMetadataOutput, error) {
	if scraper == nil {
		return nil, errors.NewInvalidRequest("no scraper configured")
	}

	claimed, err := ClaimStage(ctx, d, StageInput{ID: input.ID, Stage: string(card.StageMetadata)})
	if err != nil {
		return nil, err
	}
	id := claimed.ID
	c := claimed.Card
	out := &FetchLinkMetadataOutput{ID: id}

	skip := ""
	switch {
	case c.Type != card.TypeLink:
		skip = "not a link"
	case !c.HasURL():
		skip = "link has no url"
	case c.Metadata.PreviewStatus() == card.PreviewSuccess && !input.Force:
		skip = "preview already fetched"
	}
	if skip != "" {
		// Links skipped here still get a terminal metadataStatus.
		complete := CompleteStageInput{ID: id, Stage: string(card.StageMetadata)}
		if c.Type == card.TypeLink {
			complete.MetadataStatus = card.MetadataCompleted
		}
		if _, err := CompleteStage(ctx, d, complete); err != nil {
			return nil, err
		}
		out.Status = card.StateCompleted
		out.Skipped = true
		out.Reason = skip
		return out, nil
	}

	pageURL := c.URLValue()
	start := time.Now()
	preview, scrapeErr := scraper.Scrape(ctx, pageURL)
	d.Metrics.ObserveScrape(time.Since(start))

	status := card.MetadataCompleted
	if scrapeErr != nil {
		status = card.MetadataFailed
		preview = &card.LinkPreview{
			Status: card.PreviewError,
			URL:    pageURL,
			Error:  scrapeErr.Error(),
		}
	}

	merged, err := MergeLinkMetadata(ctx, d, MergeLinkMetadataInput{ID: id, Candidate: *preview, Status: status})
	if err != nil {
		d.releaseAsset(ctx, id, preview.ImageStorageID)
		d.releaseAsset(ctx, id, preview.ScreenshotStorageID)
		return nil, err
	}
	out.Merge = merged
	if !merged.Applied {
		// Deleted while scraping; nothing references the new asset.
		d.releaseAsset(ctx, id, preview.ImageStorageID)
		d.releaseAsset(ctx, id, preview.ScreenshotStorageID)
		out.Skipped = true
		out.Reason = "card deleted during fetch"
		return out, nil
	}

	if scrapeErr != nil {
		d.log().Warn("link preview fetch failed",
			logger.CardID(id),
			logger.String("url", pageURL),
			logger.Error(scrapeErr),
		)
		if _, err := FailStage(ctx, d, FailStageInput{ID: id, Stage: string(card.StageMetadata), Error: scrapeErr.Error()}); err != nil {
			return nil, err
		}
		out.Status = card.StateFailed
		out.Reason = scrapeErr.Error()
		return out, nil
	}

	if _, err := CompleteStage(ctx, d, CompleteStageInput{ID: id, Stage: string(card.StageMetadata)}); err != nil {
		return nil, err
	}
	out.Status = card.StateCompleted
	return out, nil
}

// PendingMetadata lists active link cards whose metadata stage is pending.
// Other card types leave that stage to the AI metadata worker.
func PendingMetadata(ctx context.Context, d *Deps, limit int) ([]string, error) {
	return db.ListPendingStage(ctx, d.DB, string(card.StageMetadata), string(card.TypeLink), limit)
}
