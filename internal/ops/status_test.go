package ops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/trove/internal/card"
)

func TestStatus(t *testing.T) {
	d, _ := newTestDeps(t)
	ctx := context.Background()

	failed := SeedStages(card.TypeLink, 1, 1)
	failed.Metadata = &card.StageStatus{Status: card.StateFailed, UpdatedAt: 2, Error: "timeout"}
	insertCard(t, d.DB, &card.Card{
		ID:               "01L",
		Type:             card.TypeLink,
		URL:              stringPtr("https://example.com"),
		MetadataStatus:   card.MetadataFailed,
		ProcessingStatus: failed,
		Metadata:         card.Metadata{LinkPreview: &card.LinkPreview{Status: card.PreviewError}},
	})
	insertCard(t, d.DB, &card.Card{ID: "01N", Content: "new", CreatedAt: 2, UpdatedAt: 2})
	insertCard(t, d.DB, &card.Card{
		ID:               "01OK",
		Content:          "done",
		AITags:           []string{"a"},
		AISummary:        stringPtr("s"),
		ProcessingStatus: SeedStages(card.TypeText, 0.6, 1),
	})

	out, err := Status(ctx, d.DB, StatusInput{})
	require.NoError(t, err)
	assert.Equal(t, 3, out.TotalCards)
	assert.Equal(t, 2, out.MissingAI)

	assert.Equal(t, 2, out.Stages["classify"].Completed)
	assert.Equal(t, 1, out.Stages["metadata"].Failed)
	assert.Equal(t, 1, out.Stages["metadata"].Pending)
	assert.Equal(t, 1, out.Stages["categorize"].Pending)
	assert.Equal(t, StageCounts{Completed: 2}, out.Stages["renderables"])

	require.Len(t, out.Sample, 2)
	assert.Equal(t, "01L", out.Sample[0].ID)
	assert.Contains(t, out.Sample[0].Reasons, "metadata failed: timeout")
	assert.Contains(t, out.Sample[0].Reasons, "categorize pending")
	assert.Contains(t, out.Sample[0].Reasons, "link preview fetch failed")
	assert.Equal(t, "01N", out.Sample[1].ID)
	assert.Contains(t, out.Sample[1].Reasons, "never classified")
}

func TestStatus_SampleLimit(t *testing.T) {
	d, _ := newTestDeps(t)
	for _, id := range []string{"01A", "01B", "01C"} {
		insertCard(t, d.DB, &card.Card{ID: id, Content: id})
	}
	out, err := Status(context.Background(), d.DB, StatusInput{SampleLimit: 1})
	require.NoError(t, err)
	assert.Len(t, out.Sample, 1)
	assert.Equal(t, 3, out.MissingAI)
}

func TestReasons(t *testing.T) {
	c := &card.Card{
		AITags:    []string{"x"},
		AISummary: stringPtr("  "),
		ProcessingStatus: card.ProcessingStatus{
			Classify:    card.Stage(card.StateCompleted, 1),
			Renderables: card.Stage(card.StateInProgress, 1),
			Metadata:    card.Stage(card.StateFailed, 1),
		},
	}
	assert.Equal(t, []string{
		"missing AI summary",
		"metadata failed",
		"renderables in progress",
	}, Reasons(c))
}
