package db

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/hpungsan/trove/internal/card"
	"github.com/hpungsan/trove/internal/errors"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// newTestCard creates a card with default values for testing.
func newTestCard(id, content string) *card.Card {
	return &card.Card{
		ID:        id,
		UserID:    "user-1",
		Type:      card.TypeText,
		Content:   content,
		CreatedAt: 1_700_000_000_000,
		UpdatedAt: 1_700_000_000_000,
	}
}

func stringPtr(s string) *string {
	return &s
}

func TestInsertAndGetByID(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	conf := 0.9
	c := newTestCard("01ABC123", "https://example.com")
	c.Type = card.TypeLink
	c.URL = stringPtr("https://example.com")
	c.FileMetadata = &card.FileMetadata{MimeType: "image/png", Width: 10, Height: 20}
	c.Tags = []string{"tag1", "tag2"}
	c.AISummary = stringPtr("summary")
	c.IsFavorited = true
	c.MetadataStatus = card.MetadataPending
	c.Metadata.LinkPreview = &card.LinkPreview{Status: card.PreviewSuccess, Title: "Example"}
	c.Metadata.Extra = map[string]json.RawMessage{"worker_note": json.RawMessage(`{"k":1}`)}
	c.ProcessingStatus.Classify = &card.StageStatus{Status: card.StateCompleted, Confidence: &conf, UpdatedAt: 5}
	c.ProcessingStatus.Extra = map[string]card.StageStatus{"ocr": {Status: card.StatePending, UpdatedAt: 5}}

	if err := Insert(ctx, db, c); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := GetByID(ctx, db, "01ABC123", false)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	if got.Type != card.TypeLink || got.Content != c.Content || got.UserID != "user-1" {
		t.Errorf("identity fields = %+v", got)
	}
	if got.URL == nil || *got.URL != "https://example.com" {
		t.Errorf("URL = %v, want https://example.com", got.URL)
	}
	if got.FileID != nil {
		t.Errorf("FileID = %v, want nil", got.FileID)
	}
	if got.FileMetadata == nil || got.FileMetadata.Height != 20 {
		t.Errorf("FileMetadata = %+v", got.FileMetadata)
	}
	if len(got.Tags) != 2 || got.Tags[1] != "tag2" {
		t.Errorf("Tags = %v", got.Tags)
	}
	if got.AITags != nil {
		t.Errorf("AITags = %v, want nil", got.AITags)
	}
	if !got.IsFavorited || got.IsDeleted {
		t.Errorf("flags favorited=%v deleted=%v", got.IsFavorited, got.IsDeleted)
	}
	if got.MetadataStatus != card.MetadataPending {
		t.Errorf("MetadataStatus = %q", got.MetadataStatus)
	}
	if got.Metadata.LinkPreview == nil || got.Metadata.LinkPreview.Title != "Example" {
		t.Errorf("LinkPreview = %+v", got.Metadata.LinkPreview)
	}
	if string(got.Metadata.Extra["worker_note"]) != `{"k":1}` {
		t.Errorf("Extra worker_note = %s", got.Metadata.Extra["worker_note"])
	}
	if got.ProcessingStatus.Classify == nil || *got.ProcessingStatus.Classify.Confidence != 0.9 {
		t.Errorf("Classify = %+v", got.ProcessingStatus.Classify)
	}
	if got.ProcessingStatus.Extra["ocr"].Status != card.StatePending {
		t.Errorf("Extra stages = %+v", got.ProcessingStatus.Extra)
	}
}

func TestInsert_UniqueConstraint(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if err := Insert(ctx, db, newTestCard("dup", "a")); err != nil {
		t.Fatalf("first Insert failed: %v", err)
	}
	if err := Insert(ctx, db, newTestCard("dup", "b")); err != ErrUniqueConstraint {
		t.Errorf("second Insert = %v, want ErrUniqueConstraint", err)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := GetByID(context.Background(), db, "nonexistent", false)
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetByID should return ErrNotFound, got: %v", err)
	}
}

func TestUpdate_ReadModifyWrite(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	c := newTestCard("01UPD", "hello")
	c.Metadata.Extra = map[string]json.RawMessage{"kept": json.RawMessage(`"yes"`)}
	if err := Insert(ctx, db, c); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	updated, err := Update(ctx, db, "01UPD", func(c *card.Card) error {
		c.Type = card.TypeQuote
		c.ProcessingStatus.Merge(card.ProcessingStatus{Classify: card.Stage(card.StatePending, 42)})
		c.UpdatedAt = 42
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Type != card.TypeQuote {
		t.Errorf("returned Type = %q", updated.Type)
	}

	got, err := GetByID(ctx, db, "01UPD", false)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Type != card.TypeQuote || got.UpdatedAt != 42 {
		t.Errorf("persisted Type=%q UpdatedAt=%d", got.Type, got.UpdatedAt)
	}
	if got.ProcessingStatus.Classify == nil || got.ProcessingStatus.Classify.Status != card.StatePending {
		t.Errorf("Classify = %+v", got.ProcessingStatus.Classify)
	}
	if string(got.Metadata.Extra["kept"]) != `"yes"` {
		t.Errorf("metadata bag lost: %+v", got.Metadata.Extra)
	}
	if got.CreatedAt != c.CreatedAt {
		t.Errorf("CreatedAt changed: %d", got.CreatedAt)
	}
}

func TestUpdate_CallbackErrorRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	if err := Insert(ctx, db, newTestCard("01RB", "before")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	boom := stderrors.New("boom")
	_, err := Update(ctx, db, "01RB", func(c *card.Card) error {
		c.Content = "after"
		return boom
	})
	if !stderrors.Is(err, boom) {
		t.Fatalf("Update error = %v, want boom", err)
	}

	got, _ := GetByID(ctx, db, "01RB", false)
	if got.Content != "before" {
		t.Errorf("Content = %q, want rollback to before", got.Content)
	}
}

func TestUpdate_NoChange(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	if err := Insert(ctx, db, newTestCard("01NC", "same")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	c, err := Update(ctx, db, "01NC", func(*card.Card) error { return ErrNoChange })
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if c.Content != "same" {
		t.Errorf("Content = %q", c.Content)
	}
}

func TestUpdate_MissingOrDeleted(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	called := false
	_, err := Update(ctx, db, "missing", func(*card.Card) error {
		called = true
		return nil
	})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Update(missing) = %v, want NOT_FOUND", err)
	}

	if err := Insert(ctx, db, newTestCard("01DEL", "x")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := SoftDelete(ctx, db, "01DEL", 99); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}
	_, err = Update(ctx, db, "01DEL", func(*card.Card) error {
		called = true
		return nil
	})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Update(deleted) = %v, want NOT_FOUND", err)
	}
	if called {
		t.Error("callback ran for a missing card")
	}
}

func TestUpdate_ConcurrentWritersDoNotLoseFields(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	if err := Insert(ctx, db, newTestCard("01CC", "x")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	stages := []card.StageKey{card.StageClassify, card.StageCategorize, card.StageMetadata, card.StageRenderables}
	var wg sync.WaitGroup
	errs := make(chan error, len(stages))
	for i, stage := range stages {
		wg.Add(1)
		go func(stage card.StageKey, now int64) {
			defer wg.Done()
			_, err := Update(ctx, db, "01CC", func(c *card.Card) error {
				var patch card.ProcessingStatus
				patch.Set(stage, card.Stage(card.StateCompleted, now))
				c.ProcessingStatus.Merge(patch)
				return nil
			})
			errs <- err
		}(stage, int64(i+1))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Update failed: %v", err)
		}
	}

	got, _ := GetByID(ctx, db, "01CC", false)
	for _, stage := range stages {
		if s := got.ProcessingStatus.Get(stage); s == nil || s.Status != card.StateCompleted {
			t.Errorf("stage %s = %+v, want completed", stage, s)
		}
	}
}

func TestSoftDelete(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	if err := Insert(ctx, db, newTestCard("01SD", "x")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := SoftDelete(ctx, db, "01SD", 77); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}

	if _, err := GetByID(ctx, db, "01SD", false); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetByID(active only) = %v, want NOT_FOUND", err)
	}
	got, err := GetByID(ctx, db, "01SD", true)
	if err != nil {
		t.Fatalf("GetByID(includeDeleted) failed: %v", err)
	}
	if !got.IsDeleted || got.UpdatedAt != 77 {
		t.Errorf("IsDeleted=%v UpdatedAt=%d", got.IsDeleted, got.UpdatedAt)
	}

	if err := SoftDelete(ctx, db, "01SD", 78); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("second SoftDelete = %v, want NOT_FOUND", err)
	}
}

func TestListMissingAI(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	complete := newTestCard("01A", "done")
	complete.AITags = []string{"x"}
	complete.AISummary = stringPtr("s")

	noTags := newTestCard("01B", "no tags")
	noTags.AISummary = stringPtr("s")
	noTags.UpdatedAt = 3

	blankSummary := newTestCard("01C", "blank summary")
	blankSummary.AITags = []string{"x"}
	blankSummary.AISummary = stringPtr("  ")
	blankSummary.UpdatedAt = 2

	deleted := newTestCard("01D", "deleted")

	for _, c := range []*card.Card{complete, noTags, blankSummary, deleted} {
		if err := Insert(ctx, db, c); err != nil {
			t.Fatalf("Insert(%s) failed: %v", c.ID, err)
		}
	}
	if err := SoftDelete(ctx, db, "01D", 1); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}

	cards, err := ListMissingAI(ctx, db, 10)
	if err != nil {
		t.Fatalf("ListMissingAI failed: %v", err)
	}
	if len(cards) != 2 || cards[0].ID != "01C" || cards[1].ID != "01B" {
		ids := make([]string, 0, len(cards))
		for _, c := range cards {
			ids = append(ids, c.ID)
		}
		t.Errorf("ListMissingAI = %v, want [01C 01B]", ids)
	}

	limited, err := ListMissingAI(ctx, db, 1)
	if err != nil || len(limited) != 1 {
		t.Errorf("ListMissingAI(limit 1) = %d cards, err %v", len(limited), err)
	}

	n, err := CountMissingAI(ctx, db)
	if err != nil || n != 2 {
		t.Errorf("CountMissingAI = %d, %v; want 2", n, err)
	}
	active, err := CountActive(ctx, db)
	if err != nil || active != 3 {
		t.Errorf("CountActive = %d, %v; want 3", active, err)
	}
}

func TestStageCounts(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	a := newTestCard("01A", "a")
	a.ProcessingStatus.Classify = card.Stage(card.StateCompleted, 1)
	a.ProcessingStatus.Metadata = card.Stage(card.StatePending, 1)

	b := newTestCard("01B", "b")
	b.ProcessingStatus.Classify = card.Stage(card.StateCompleted, 1)
	b.ProcessingStatus.Metadata = card.Stage(card.StateFailed, 1)

	c := newTestCard("01C", "c")

	for _, x := range []*card.Card{a, b, c} {
		if err := Insert(ctx, db, x); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	counts, err := StageCounts(ctx, db)
	if err != nil {
		t.Fatalf("StageCounts failed: %v", err)
	}
	if counts["classify"]["completed"] != 2 {
		t.Errorf("classify completed = %d, want 2", counts["classify"]["completed"])
	}
	if counts["metadata"]["pending"] != 1 || counts["metadata"]["failed"] != 1 {
		t.Errorf("metadata counts = %v", counts["metadata"])
	}
	if _, ok := counts["renderables"]; ok {
		t.Errorf("renderables should be absent, got %v", counts["renderables"])
	}
}

func TestListPendingStage(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	older := newTestCard("01OLD", "a")
	older.UpdatedAt = 100
	older.ProcessingStatus.Metadata = card.Stage(card.StatePending, 1)

	newer := newTestCard("01NEW", "b")
	newer.UpdatedAt = 200
	newer.ProcessingStatus.Metadata = card.Stage(card.StatePending, 1)

	done := newTestCard("01DONE", "c")
	done.ProcessingStatus.Metadata = card.Stage(card.StateCompleted, 1)

	gone := newTestCard("01GONE", "d")
	gone.ProcessingStatus.Metadata = card.Stage(card.StatePending, 1)

	for _, x := range []*card.Card{newer, older, done, gone} {
		if err := Insert(ctx, db, x); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	if err := SoftDelete(ctx, db, "01GONE", 300); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}

	ids, err := ListPendingStage(ctx, db, "metadata", "", 10)
	if err != nil {
		t.Fatalf("ListPendingStage failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "01OLD" || ids[1] != "01NEW" {
		t.Errorf("ids = %v, want [01OLD 01NEW]", ids)
	}

	ids, err = ListPendingStage(ctx, db, "metadata", "", 1)
	if err != nil {
		t.Fatalf("ListPendingStage failed: %v", err)
	}
	if len(ids) != 1 {
		t.Errorf("limit ignored: %v", ids)
	}

	ids, err = ListPendingStage(ctx, db, "metadata", "link", 10)
	if err != nil {
		t.Fatalf("ListPendingStage failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("link filter = %v, want none for text cards", ids)
	}

	ids, err = ListPendingStage(ctx, db, "renderables", "", 10)
	if err != nil {
		t.Fatalf("ListPendingStage failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("renderables pending = %v, want none", ids)
	}
}
