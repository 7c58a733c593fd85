package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/trove/internal/card"
	"github.com/hpungsan/trove/internal/db"
	"github.com/hpungsan/trove/internal/errors"
	"github.com/hpungsan/trove/internal/logger"
)

// StageInput addresses one stage of one card.
type StageInput struct {
	ID    string
	Stage string
}

// StageOutput contains the card after a stage transition.
type StageOutput struct {
	ID     string          `json:"id"`
	Stage  card.StageKey   `json:"stage"`
	Status card.StageState `json:"status"`
	Card   *card.Card      `json:"card"`
}

func (in StageInput) validate() (string, card.StageKey, error) {
	id, err := requireID(in.ID)
	if err != nil {
		return "", "", err
	}
	stage, ok := card.ParseStage(strings.TrimSpace(in.Stage))
	if !ok {
		return "", "", errors.NewInvalidRequest("unknown stage: " + in.Stage)
	}
	return id, stage, nil
}

// ClaimStage moves a pending stage to in_progress. It is the only lock
// workers have: any other current state is a STAGE_CONFLICT.
func ClaimStage(ctx context.Context, d *Deps, input StageInput) (*StageOutput, error) {
	id, stage, err := input.validate()
	if err != nil {
		return nil, err
	}

	now := d.nowMillis()
	c, err := db.Update(ctx, d.DB, id, func(c *card.Card) error {
		if err := expectState(c, stage, card.StatePending); err != nil {
			return err
		}
		var patch card.ProcessingStatus
		patch.Set(stage, card.Stage(card.StateInProgress, now))
		c.ProcessingStatus.Merge(patch)
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.Metrics.StageTransition(string(stage), string(card.StateInProgress))
	return &StageOutput{ID: id, Stage: stage, Status: card.StateInProgress, Card: c}, nil
}

// CompleteStageInput contains parameters for the CompleteStage operation.
// Output fields left nil are not written.
type CompleteStageInput struct {
	ID    string
	Stage string

	// Confidence is recorded for classify and categorize.
	Confidence *float64

	AITags       []string
	AISummary    *string
	AITranscript *string
	LinkCategory *string

	// ThumbnailID replaces the card's render output; the previous asset is
	// deleted after the write.
	ThumbnailID *string

	// MetadataStatus is recorded on link cards in the same write. It must be
	// terminal when set.
	MetadataStatus card.MetadataStatus
}

// CompleteStage records a successful stage run together with whatever the
// worker produced.
func CompleteStage(ctx context.Context, d *Deps, input CompleteStageInput) (*StageOutput, error) {
	id, stage, err := StageInput{ID: input.ID, Stage: input.Stage}.validate()
	if err != nil {
		return nil, err
	}
	if input.MetadataStatus != "" && !input.MetadataStatus.Terminal() {
		return nil, errors.NewInvalidRequest("metadata status must be completed or failed")
	}

	now := d.nowMillis()
	var oldThumbnail string

	c, err := db.Update(ctx, d.DB, id, func(c *card.Card) error {
		oldThumbnail = ""
		if err := expectState(c, stage, card.StateInProgress); err != nil {
			return err
		}

		entry := card.Stage(card.StateCompleted, now)
		if input.Confidence != nil && (stage == card.StageClassify || stage == card.StageCategorize) {
			entry = card.StageWithConfidence(card.StateCompleted, *input.Confidence, now)
		}
		var patch card.ProcessingStatus
		patch.Set(stage, entry)
		c.ProcessingStatus.Merge(patch)

		if input.AITags != nil {
			c.AITags = cleanTags(input.AITags)
		}
		if input.AISummary != nil {
			c.AISummary = cleanOptionalString(input.AISummary)
		}
		if input.AITranscript != nil {
			c.AITranscript = cleanOptionalString(input.AITranscript)
		}
		if input.LinkCategory != nil {
			c.Metadata.LinkCategory = cleanOptionalString(input.LinkCategory)
		}
		if input.MetadataStatus != "" && c.Type == card.TypeLink {
			c.MetadataStatus = input.MetadataStatus
		}
		if input.ThumbnailID != nil {
			next := cleanOptionalString(input.ThumbnailID)
			if ptrValue(next) != ptrValue(c.ThumbnailID) {
				oldThumbnail = ptrValue(c.ThumbnailID)
				c.ThumbnailID = next
			}
		}
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.releaseAsset(ctx, id, oldThumbnail)
	d.Metrics.StageTransition(string(stage), string(card.StateCompleted))
	return &StageOutput{ID: id, Stage: stage, Status: card.StateCompleted, Card: c}, nil
}

// FailStageInput contains parameters for the FailStage operation.
type FailStageInput struct {
	ID    string
	Stage string
	Error string
}

// FailStage records a failed stage run. The error text is kept on the stage
// entry and surfaces in status reports.
func FailStage(ctx context.Context, d *Deps, input FailStageInput) (*StageOutput, error) {
	id, stage, err := StageInput{ID: input.ID, Stage: input.Stage}.validate()
	if err != nil {
		return nil, err
	}

	msg := strings.TrimSpace(input.Error)
	if msg == "" {
		msg = "unknown error"
	}
	if len([]rune(msg)) > MaxErrorChars {
		msg = string([]rune(msg)[:MaxErrorChars])
	}

	now := d.nowMillis()
	c, err := db.Update(ctx, d.DB, id, func(c *card.Card) error {
		if err := expectState(c, stage, card.StateInProgress); err != nil {
			return err
		}
		entry := card.Stage(card.StateFailed, now)
		entry.Error = msg
		var patch card.ProcessingStatus
		patch.Set(stage, entry)
		c.ProcessingStatus.Merge(patch)
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.Metrics.StageTransition(string(stage), string(card.StateFailed))
	d.log().Warn("stage failed", logger.CardID(id), logger.Stage(string(stage)), logger.String("error", msg))
	return &StageOutput{ID: id, Stage: stage, Status: card.StateFailed, Card: c}, nil
}

func expectState(c *card.Card, stage card.StageKey, want card.StageState) error {
	current := "unset"
	if s := c.ProcessingStatus.Get(stage); s != nil {
		if s.Status == want {
			return nil
		}
		current = string(s.Status)
	}
	return errors.NewStageConflict(c.ID, string(stage), current)
}
