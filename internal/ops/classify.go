package ops

import (
	"context"

	"github.com/hpungsan/trove/internal/card"
	"github.com/hpungsan/trove/internal/classify"
	"github.com/hpungsan/trove/internal/db"
	"github.com/hpungsan/trove/internal/errors"
	"github.com/hpungsan/trove/internal/logger"
)

// ClassifyInput contains parameters for the Classify operation.
type ClassifyInput struct {
	ID string
}

// ClassifyOutput contains the result of the Classify operation.
type ClassifyOutput struct {
	ID       string            `json:"id"`
	Decision classify.Decision `json:"decision"`

	// Committed is false for sticky decisions, which leave the card untouched.
	Committed bool       `json:"committed"`
	Card      *card.Card `json:"card,omitempty"`
}

// Classify loads a card, decides its type and commits the decision.
// A card that no longer exists is a NOT_FOUND error; callers treat it as
// terminal for that card.
func Classify(ctx context.Context, d *Deps, input ClassifyInput) (*ClassifyOutput, error) {
	id, err := requireID(input.ID)
	if err != nil {
		return nil, err
	}

	c, err := db.GetByID(ctx, d.DB, id, false)
	if err != nil {
		return nil, err
	}

	decision := classify.Classify(classify.SnapshotOf(c))
	out := &ClassifyOutput{ID: id, Decision: decision}
	if decision.Sticky {
		out.Card = c
		return out, nil
	}

	updated, err := UpdateClassification(ctx, d, UpdateClassificationInput{
		ID:         id,
		Type:       decision.Type,
		Confidence: decision.Confidence,
	})
	if err != nil {
		return nil, err
	}

	d.log().Debug("card classified",
		logger.CardID(id),
		logger.String("type", string(decision.Type)),
		logger.Float64("confidence", decision.Confidence),
		logger.String("rule", string(decision.Rule)),
	)
	out.Committed = true
	out.Card = updated.Card
	return out, nil
}

// UpdateClassificationInput contains parameters for the UpdateClassification operation.
type UpdateClassificationInput struct {
	ID         string
	Type       card.Type
	Confidence float64
}

// UpdateClassificationOutput contains the result of the UpdateClassification operation.
type UpdateClassificationOutput struct {
	Card *card.Card `json:"card"`
}

// UpdateClassification commits a classification decision and seeds the
// downstream stages in one transaction. Stages it does not name keep their
// current entries.
func UpdateClassification(ctx context.Context, d *Deps, input UpdateClassificationInput) (*UpdateClassificationOutput, error) {
	id, err := requireID(input.ID)
	if err != nil {
		return nil, err
	}
	if !input.Type.Valid() {
		return nil, errors.NewInvalidRequest("unknown card type: " + string(input.Type))
	}

	now := d.nowMillis()
	t := input.Type
	patch := SeedStages(t, input.Confidence, now)

	c, err := db.Update(ctx, d.DB, id, func(c *card.Card) error {
		c.Type = t
		c.ProcessingStatus.Merge(patch)
		if t == card.TypeLink {
			c.MetadataStatus = card.MetadataPending
		}
		if t == card.TypeQuote {
			if stripped := card.StripWrappingQuotes(c.Content); stripped != c.Content {
				c.Content = stripped
			}
		}
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.Metrics.Classified(string(t))
	for _, stage := range card.Stages {
		if s := patch.Get(stage); s != nil {
			d.Metrics.StageTransition(string(stage), string(s.Status))
		}
	}
	return &UpdateClassificationOutput{Card: c}, nil
}

// SeedStages builds the stage entries a classification commit writes.
func SeedStages(t card.Type, confidence float64, now int64) card.ProcessingStatus {
	patch := card.ProcessingStatus{
		Classify: card.StageWithConfidence(card.StateCompleted, confidence, now),
		Metadata: card.Stage(card.StatePending, now),
	}
	if t == card.TypeLink {
		patch.Categorize = card.Stage(card.StatePending, now)
	} else {
		patch.Categorize = card.StageWithConfidence(card.StateCompleted, 1, now)
	}
	if t.NeedsRenderables() {
		patch.Renderables = card.Stage(card.StatePending, now)
	} else {
		patch.Renderables = card.Stage(card.StateCompleted, now)
	}
	return patch
}
