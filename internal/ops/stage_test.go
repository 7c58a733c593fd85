package ops

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/trove/internal/card"
	"github.com/hpungsan/trove/internal/errors"
)

func insertPendingLink(t *testing.T, d *Deps, id string) *card.Card {
	t.Helper()
	return insertCard(t, d.DB, &card.Card{
		ID:               id,
		Type:             card.TypeLink,
		URL:              stringPtr("https://example.com/" + id),
		MetadataStatus:   card.MetadataPending,
		ProcessingStatus: SeedStages(card.TypeLink, 1, 1),
	})
}

func TestClaimStage_OnlyFromPending(t *testing.T) {
	d, _ := newTestDeps(t)
	ctx := context.Background()
	c := insertPendingLink(t, d, "01C")

	out, err := ClaimStage(ctx, d, StageInput{ID: c.ID, Stage: "categorize"})
	require.NoError(t, err)
	assert.Equal(t, card.StateInProgress, out.Status)
	assert.Equal(t, card.StateInProgress, out.Card.ProcessingStatus.Categorize.Status)

	_, err = ClaimStage(ctx, d, StageInput{ID: c.ID, Stage: "categorize"})
	assert.True(t, errors.Is(err, errors.ErrStageConflict), "second claim must conflict")

	_, err = ClaimStage(ctx, d, StageInput{ID: c.ID, Stage: "classify"})
	assert.True(t, errors.Is(err, errors.ErrStageConflict), "completed stages cannot be claimed")
}

func TestClaimStage_UnsetStageConflicts(t *testing.T) {
	d, _ := newTestDeps(t)
	insertCard(t, d.DB, &card.Card{ID: "01N", Content: "x"})

	_, err := ClaimStage(context.Background(), d, StageInput{ID: "01N", Stage: "metadata"})
	te, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrStageConflict, te.Code)
	assert.Contains(t, te.Message, "unset")
}

func TestClaimStage_Validation(t *testing.T) {
	d, _ := newTestDeps(t)
	ctx := context.Background()

	_, err := ClaimStage(ctx, d, StageInput{ID: "01X", Stage: "ocr"})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = ClaimStage(ctx, d, StageInput{ID: "", Stage: "classify"})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = ClaimStage(ctx, d, StageInput{ID: "01X", Stage: "classify"})
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestCompleteStage_WritesOutputs(t *testing.T) {
	d, _ := newTestDeps(t)
	ctx := context.Background()
	c := insertPendingLink(t, d, "01C")

	_, err := ClaimStage(ctx, d, StageInput{ID: c.ID, Stage: "categorize"})
	require.NoError(t, err)

	out, err := CompleteStage(ctx, d, CompleteStageInput{
		ID:           c.ID,
		Stage:        "categorize",
		Confidence:   floatPtr(0.7),
		AITags:       []string{"go", " go ", "db"},
		AISummary:    stringPtr(" A summary "),
		LinkCategory: stringPtr("article"),
	})
	require.NoError(t, err)

	got := out.Card
	assert.Equal(t, card.StateCompleted, got.ProcessingStatus.Categorize.Status)
	assert.Equal(t, 0.7, *got.ProcessingStatus.Categorize.Confidence)
	assert.Equal(t, []string{"go", "db"}, got.AITags)
	assert.Equal(t, "A summary", *got.AISummary)
	assert.Equal(t, "article", *got.Metadata.LinkCategory)
	assert.Nil(t, got.AITranscript)

	_, err = CompleteStage(ctx, d, CompleteStageInput{ID: c.ID, Stage: "categorize"})
	assert.True(t, errors.Is(err, errors.ErrStageConflict), "complete requires in_progress")
}

func TestCompleteStage_ConfidenceIgnoredForOtherStages(t *testing.T) {
	d, _ := newTestDeps(t)
	ctx := context.Background()
	c := insertPendingLink(t, d, "01C")

	_, err := ClaimStage(ctx, d, StageInput{ID: c.ID, Stage: "metadata"})
	require.NoError(t, err)
	out, err := CompleteStage(ctx, d, CompleteStageInput{ID: c.ID, Stage: "metadata", Confidence: floatPtr(0.3)})
	require.NoError(t, err)
	assert.Nil(t, out.Card.ProcessingStatus.Metadata.Confidence)
}

func TestCompleteStage_MetadataStatus(t *testing.T) {
	d, _ := newTestDeps(t)
	ctx := context.Background()
	c := insertPendingLink(t, d, "01C")
	insertCard(t, d.DB, &card.Card{ID: "01T", Content: "x", ProcessingStatus: SeedStages(card.TypeText, 0.6, 1)})

	_, err := CompleteStage(ctx, d, CompleteStageInput{ID: c.ID, Stage: "metadata", MetadataStatus: card.MetadataPending})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	for _, id := range []string{c.ID, "01T"} {
		_, err = ClaimStage(ctx, d, StageInput{ID: id, Stage: "metadata"})
		require.NoError(t, err)
		_, err = CompleteStage(ctx, d, CompleteStageInput{ID: id, Stage: "metadata", MetadataStatus: card.MetadataFailed})
		require.NoError(t, err)
	}
	assert.Equal(t, card.MetadataFailed, mustFetch(t, d, c.ID).MetadataStatus)
	assert.Equal(t, card.MetadataUnset, mustFetch(t, d, "01T").MetadataStatus, "only links carry a metadata status")
}

func TestCompleteStage_ThumbnailSwapReleasesOld(t *testing.T) {
	d, blobs := newTestDeps(t)
	blobs.Seed("old.png", []byte("o"))
	blobs.Seed("new.png", []byte("n"))
	insertCard(t, d.DB, &card.Card{
		ID:          "01I",
		Type:        card.TypeImage,
		FileID:      stringPtr("f1"),
		ThumbnailID: stringPtr("old.png"),
		ProcessingStatus: card.ProcessingStatus{
			Renderables: card.Stage(card.StateInProgress, 1),
		},
	})

	out, err := CompleteStage(context.Background(), d, CompleteStageInput{
		ID: "01I", Stage: "renderables", ThumbnailID: stringPtr("new.png"),
	})
	require.NoError(t, err)
	assert.Equal(t, "new.png", *out.Card.ThumbnailID)
	assert.Equal(t, []string{"old.png"}, blobs.Deleted())
	assert.True(t, blobs.Has("new.png"))
}

func TestCompleteStage_SameThumbnailKept(t *testing.T) {
	d, blobs := newTestDeps(t)
	insertCard(t, d.DB, &card.Card{
		ID:          "01I",
		Type:        card.TypeImage,
		ThumbnailID: stringPtr("same.png"),
		ProcessingStatus: card.ProcessingStatus{
			Renderables: card.Stage(card.StateInProgress, 1),
		},
	})

	_, err := CompleteStage(context.Background(), d, CompleteStageInput{
		ID: "01I", Stage: "renderables", ThumbnailID: stringPtr("same.png"),
	})
	require.NoError(t, err)
	assert.Empty(t, blobs.Deleted())
}

func TestFailStage(t *testing.T) {
	d, _ := newTestDeps(t)
	ctx := context.Background()
	c := insertPendingLink(t, d, "01F")

	_, err := FailStage(ctx, d, FailStageInput{ID: c.ID, Stage: "metadata", Error: "boom"})
	assert.True(t, errors.Is(err, errors.ErrStageConflict), "fail requires in_progress")

	_, err = ClaimStage(ctx, d, StageInput{ID: c.ID, Stage: "metadata"})
	require.NoError(t, err)

	out, err := FailStage(ctx, d, FailStageInput{ID: c.ID, Stage: "metadata", Error: strings.Repeat("é", MaxErrorChars+10)})
	require.NoError(t, err)
	s := out.Card.ProcessingStatus.Metadata
	assert.Equal(t, card.StateFailed, s.Status)
	assert.Equal(t, MaxErrorChars, len([]rune(s.Error)))
	assert.Equal(t, card.StatePending, out.Card.ProcessingStatus.Categorize.Status, "other stages untouched")
}

func TestFailStage_DefaultMessage(t *testing.T) {
	d, _ := newTestDeps(t)
	ctx := context.Background()
	c := insertPendingLink(t, d, "01F")
	_, err := ClaimStage(ctx, d, StageInput{ID: c.ID, Stage: "categorize"})
	require.NoError(t, err)

	out, err := FailStage(ctx, d, FailStageInput{ID: c.ID, Stage: "categorize", Error: "  "})
	require.NoError(t, err)
	assert.Equal(t, "unknown error", out.Card.ProcessingStatus.Categorize.Error)
}
