package ops

import (
	"context"

	"github.com/hpungsan/trove/internal/card"
	"github.com/hpungsan/trove/internal/db"
	"github.com/hpungsan/trove/internal/logger"
)

// ResetInput contains parameters for the Reset operation.
type ResetInput struct {
	ID string
}

// ResetOutput contains the result of the Reset operation.
type ResetOutput struct {
	ID string `json:"id"`

	// ReleasedThumbnail is the render asset that was deleted, if any.
	ReleasedThumbnail string `json:"released_thumbnail,omitempty"`

	// Classification is set when the pipeline was restarted inline.
	Classification *ClassifyOutput `json:"classification,omitempty"`
}

// Reset clears AI-derived output and returns the card to classify: pending,
// then schedules the pipeline. Other stage entries are left for the
// classification commit to reseed. This is the only recovery for a stage a
// crashed worker left in_progress.
func Reset(ctx context.Context, d *Deps, input ResetInput) (*ResetOutput, error) {
	out, err := resetCard(ctx, d, input.ID)
	if err != nil {
		return nil, err
	}

	classified, err := d.scheduleClassify(ctx, out.ID)
	if err != nil {
		return nil, err
	}
	out.Classification = classified
	return out, nil
}

// RefreshInput contains parameters for the Refresh operation.
type RefreshInput struct {
	ID string
}

// Refresh resets one card and classifies it immediately, regardless of the
// configured Scheduler.
func Refresh(ctx context.Context, d *Deps, input RefreshInput) (*ResetOutput, error) {
	out, err := resetCard(ctx, d, input.ID)
	if err != nil {
		return nil, err
	}

	classified, err := Classify(ctx, d, ClassifyInput{ID: out.ID})
	if err != nil {
		return nil, err
	}
	out.Classification = classified
	return out, nil
}

func resetCard(ctx context.Context, d *Deps, rawID string) (*ResetOutput, error) {
	id, err := requireID(rawID)
	if err != nil {
		return nil, err
	}

	now := d.nowMillis()
	var oldThumbnail string

	_, err = db.Update(ctx, d.DB, id, func(c *card.Card) error {
		oldThumbnail = ptrValue(c.ThumbnailID)
		c.ThumbnailID = nil
		c.AITags = nil
		c.AISummary = nil
		c.AITranscript = nil
		c.ProcessingStatus.Merge(card.ProcessingStatus{
			Classify: card.Stage(card.StatePending, now),
		})
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	d.Metrics.StageTransition(string(card.StageClassify), string(card.StatePending))

	out := &ResetOutput{ID: id}
	if d.releaseAsset(ctx, id, oldThumbnail) {
		out.ReleasedThumbnail = oldThumbnail
	}
	d.log().Info("card reset", logger.CardID(id))
	return out, nil
}

// BackfillInput contains parameters for the Backfill operation.
type BackfillInput struct {
	Limit int // default: DefaultBackfillLimit, max: MaxBackfillLimit
}

// BackfillFailure records one card the sweep could not reset.
type BackfillFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// BackfillOutput contains the result of the Backfill operation.
type BackfillOutput struct {
	Scanned  int               `json:"scanned"`
	Reset    int               `json:"reset"`
	Failures []BackfillFailure `json:"failures,omitempty"`
}

// Backfill resets active cards that are missing AI tags or an AI summary,
// oldest first. A failure on one card is recorded and the sweep continues.
func Backfill(ctx context.Context, d *Deps, input BackfillInput) (*BackfillOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultBackfillLimit
	}
	if limit > MaxBackfillLimit {
		limit = MaxBackfillLimit
	}

	cards, err := db.ListMissingAI(ctx, d.DB, limit)
	if err != nil {
		return nil, err
	}

	out := &BackfillOutput{Scanned: len(cards)}
	for _, c := range cards {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if _, err := Reset(ctx, d, ResetInput{ID: c.ID}); err != nil {
			d.log().Warn("backfill reset failed", logger.CardID(c.ID), logger.Error(err))
			out.Failures = append(out.Failures, BackfillFailure{ID: c.ID, Error: err.Error()})
			continue
		}
		out.Reset++
	}

	d.log().Info("backfill complete",
		logger.Int("scanned", out.Scanned),
		logger.Int("reset", out.Reset),
		logger.Int("failed", len(out.Failures)),
	)
	return out, nil
}
