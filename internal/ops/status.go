package ops

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hpungsan/trove/internal/card"
	"github.com/hpungsan/trove/internal/db"
)

// StatusInput contains parameters for the Status operation.
type StatusInput struct {
	SampleLimit int // default: DefaultStatusSampleLimit, max: MaxStatusSampleLimit
}

// StageCounts is the number of active cards in each state of one stage.
type StageCounts struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// StatusSample describes one card that is missing AI output.
type StatusSample struct {
	ID        string    `json:"id"`
	Type      card.Type `json:"type"`
	UpdatedAt int64     `json:"updated_at"`
	Reasons   []string  `json:"reasons"`
}

// StatusOutput is the operator dashboard view of the pipeline.
type StatusOutput struct {
	TotalCards int                    `json:"total_cards"`
	MissingAI  int                    `json:"missing_ai"`
	Stages     map[string]StageCounts `json:"stages"`
	Sample     []StatusSample         `json:"sample"`
}

// Status aggregates per-stage counts and samples cards missing AI metadata,
// each with human-readable reasons.
func Status(ctx context.Context, database *sql.DB, input StatusInput) (*StatusOutput, error) {
	limit := input.SampleLimit
	if limit <= 0 {
		limit = DefaultStatusSampleLimit
	}
	if limit > MaxStatusSampleLimit {
		limit = MaxStatusSampleLimit
	}

	total, err := db.CountActive(ctx, database)
	if err != nil {
		return nil, err
	}
	missing, err := db.CountMissingAI(ctx, database)
	if err != nil {
		return nil, err
	}
	raw, err := db.StageCounts(ctx, database)
	if err != nil {
		return nil, err
	}

	out := &StatusOutput{
		TotalCards: total,
		MissingAI:  missing,
		Stages:     make(map[string]StageCounts, len(card.Stages)),
		Sample:     []StatusSample{},
	}
	for _, stage := range card.Stages {
		out.Stages[string(stage)] = StageCounts{}
	}
	for stage, byState := range raw {
		out.Stages[stage] = StageCounts{
			Pending:    byState[string(card.StatePending)],
			InProgress: byState[string(card.StateInProgress)],
			Completed:  byState[string(card.StateCompleted)],
			Failed:     byState[string(card.StateFailed)],
		}
	}

	cards, err := db.ListMissingAI(ctx, database, limit)
	if err != nil {
		return nil, err
	}
	for _, c := range cards {
		out.Sample = append(out.Sample, StatusSample{
			ID:        c.ID,
			Type:      c.Type,
			UpdatedAt: c.UpdatedAt,
			Reasons:   Reasons(c),
		})
	}
	return out, nil
}

// Reasons explains why a card's enrichment is incomplete.
func Reasons(c *card.Card) []string {
	var reasons []string
	if len(c.AITags) == 0 {
		reasons = append(reasons, "missing AI tags")
	}
	if c.AISummary == nil || strings.TrimSpace(*c.AISummary) == "" {
		reasons = append(reasons, "missing AI summary")
	}
	if c.ProcessingStatus.IsEmpty() {
		reasons = append(reasons, "never classified")
	}
	for _, stage := range card.Stages {
		s := c.ProcessingStatus.Get(stage)
		if s == nil {
			continue
		}
		switch s.Status {
		case card.StateFailed:
			if s.Error != "" {
				reasons = append(reasons, fmt.Sprintf("%s failed: %s", stage, s.Error))
			} else {
				reasons = append(reasons, fmt.Sprintf("%s failed", stage))
			}
		case card.StateInProgress:
			reasons = append(reasons, fmt.Sprintf("%s in progress", stage))
		case card.StatePending:
			reasons = append(reasons, fmt.Sprintf("%s pending", stage))
		}
	}
	if c.Type == card.TypeLink && c.Metadata.PreviewStatus() == card.PreviewError {
		reasons = append(reasons, "link preview fetch failed")
	}
	return reasons
}
