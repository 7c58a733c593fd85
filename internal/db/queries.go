package db

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"strings"

	"github.com/hpungsan/trove/internal/card"
	"github.com/hpungsan/trove/internal/errors"
)

// ErrNoChange may be returned by an Update callback to finish without
// writing. The callback must not have mutated the card when it does.
var ErrNoChange = stderrors.New("no change")

// ErrUniqueConstraint is returned when an insert reuses an existing card ID.
var ErrUniqueConstraint = &errors.TroveError{
	Code:    "UNIQUE_CONSTRAINT",
	Status:  409,
	Message: "unique constraint violation",
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const cardColumns = `
	id, user_id, type, content, url, file_id, file_metadata_json,
	colors_json, tags_json, ai_tags_json, ai_summary, ai_transcript,
	thumbnail_id, metadata_json, metadata_title, metadata_description,
	metadata_status, processing_status_json, is_favorited,
	created_at, updated_at, deleted_at`

// Insert stores a new card in the database.
func Insert(ctx context.Context, db *sql.DB, c *card.Card) error {
	cols, err := encodeCard(c)
	if err != nil {
		return errors.NewInternal(err)
	}

	query := `INSERT INTO cards (` + cardColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`

	args := append([]any{c.ID}, cols.args()...)
	args = append(args, c.CreatedAt, c.UpdatedAt)
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}
	return nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetByID retrieves a card by its ULID.
// If includeDeleted is false, soft-deleted cards are excluded.
func GetByID(ctx context.Context, db *sql.DB, id string, includeDeleted bool) (*card.Card, error) {
	return getByID(ctx, db, id, includeDeleted)
}

func getByID(ctx context.Context, q querier, id string, includeDeleted bool) (*card.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE id = ?`
	if !includeDeleted {
		query += " AND deleted_at IS NULL"
	}

	c, err := scanCard(q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return c, nil
}

// Update runs fn against the current state of an active card and writes the
// result back, all inside one immediate transaction. Fields fn leaves alone
// are written back unchanged, so concurrent updates to other fields are
// never lost.
func Update(ctx context.Context, db *sql.DB, id string, fn func(c *card.Card) error) (*card.Card, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer func() { _ = tx.Rollback() }()

	c, err := getByID(ctx, tx, id, false)
	if err != nil {
		return nil, err
	}

	if err := fn(c); err != nil {
		if stderrors.Is(err, ErrNoChange) {
			return c, nil
		}
		return nil, err
	}

	if err := writeCard(ctx, tx, c); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return c, nil
}

// writeCard persists every mutable column of c.
// Does NOT change: id, created_at, deleted_at
func writeCard(ctx context.Context, q querier, c *card.Card) error {
	cols, err := encodeCard(c)
	if err != nil {
		return errors.NewInternal(err)
	}

	query := `
		UPDATE cards
		SET user_id = ?, type = ?, content = ?, url = ?, file_id = ?,
			file_metadata_json = ?, colors_json = ?, tags_json = ?,
			ai_tags_json = ?, ai_summary = ?, ai_transcript = ?,
			thumbnail_id = ?, metadata_json = ?, metadata_title = ?,
			metadata_description = ?, metadata_status = ?,
			processing_status_json = ?, is_favorited = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`
	args := append(cols.args(), c.UpdatedAt, c.ID)
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.NewInternal(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(c.ID)
	}
	return nil
}

// SoftDelete marks a card as deleted by setting deleted_at.
func SoftDelete(ctx context.Context, db *sql.DB, id string, now int64) error {
	query := `
		UPDATE cards
		SET deleted_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := db.ExecContext(ctx, query, now, now, id)
	if err != nil {
		return errors.NewInternal(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(id)
	}
	return nil
}

const missingAIFilter = `
	deleted_at IS NULL AND (
		ai_tags_json IS NULL OR ai_tags_json IN ('', '[]', 'null')
		OR ai_summary IS NULL OR TRIM(ai_summary) = ''
	)`

// ListMissingAI returns active cards that lack AI tags or an AI summary,
// least recently updated first.
func ListMissingAI(ctx context.Context, db *sql.DB, limit int) ([]*card.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE ` + missingAIFilter + `
		ORDER BY updated_at ASC, id ASC LIMIT ?`

	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var cards []*card.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return cards, nil
}

// CountMissingAI counts active cards that ListMissingAI would return without a limit.
func CountMissingAI(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards WHERE `+missingAIFilter).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// CountActive counts cards that are not soft-deleted.
func CountActive(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards WHERE deleted_at IS NULL`).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// StageCounts tallies active cards by stage name and stage status, read
// from the processing status JSON.
func StageCounts(ctx context.Context, db *sql.DB) (map[string]map[string]int, error) {
	query := `
		SELECT s.key, COALESCE(json_extract(s.value, '$.status'), ''), COUNT(*)
		FROM cards, json_each(cards.processing_status_json) AS s
		WHERE cards.deleted_at IS NULL
		GROUP BY 1, 2
	`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	counts := make(map[string]map[string]int)
	for rows.Next() {
		var stage, status string
		var n int
		if err := rows.Scan(&stage, &status, &n); err != nil {
			return nil, errors.NewInternal(err)
		}
		if counts[stage] == nil {
			counts[stage] = make(map[string]int)
		}
		counts[stage][status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return counts, nil
}

// ListPendingStage returns IDs of active cards whose given stage is pending,
// oldest first. An empty cardType matches every type.
func ListPendingStage(ctx context.Context, db *sql.DB, stage, cardType string, limit int) ([]string, error) {
	query := `
		SELECT id FROM cards
		WHERE deleted_at IS NULL
		  AND json_extract(processing_status_json, '$.' || ? || '.status') = 'pending'
		  AND (? = '' OR type = ?)
		ORDER BY updated_at ASC, id ASC
		LIMIT ?
	`
	rows, err := db.QueryContext(ctx, query, stage, cardType, cardType, limit)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.NewInternal(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return ids, nil
}

// encodedCard holds the column values of a card that need conversion.
type encodedCard struct {
	c                *card.Card
	fileMetadata     sql.NullString
	colors           sql.NullString
	tags             sql.NullString
	aiTags           sql.NullString
	metadata         string
	processingStatus string
}

// args returns the mutable columns in cardColumns order, from user_id
// through is_favorited.
func (e *encodedCard) args() []any {
	c := e.c
	return []any{
		c.UserID, string(c.Type), c.Content, toNullString(c.URL), toNullString(c.FileID),
		e.fileMetadata, e.colors, e.tags,
		e.aiTags, toNullString(c.AISummary), toNullString(c.AITranscript),
		toNullString(c.ThumbnailID), e.metadata, toNullString(c.MetadataTitle),
		toNullString(c.MetadataDescription), string(c.MetadataStatus),
		e.processingStatus, c.IsFavorited,
	}
}

func encodeCard(c *card.Card) (*encodedCard, error) {
	e := &encodedCard{c: c}
	var err error

	if c.FileMetadata != nil {
		if e.fileMetadata, err = toNullJSON(c.FileMetadata); err != nil {
			return nil, err
		}
	}
	if e.colors, err = stringsToNullJSON(c.Colors); err != nil {
		return nil, err
	}
	if e.tags, err = stringsToNullJSON(c.Tags); err != nil {
		return nil, err
	}
	if e.aiTags, err = stringsToNullJSON(c.AITags); err != nil {
		return nil, err
	}

	md, err := json.Marshal(c.Metadata)
	if err != nil {
		return nil, err
	}
	e.metadata = string(md)

	ps, err := json.Marshal(c.ProcessingStatus)
	if err != nil {
		return nil, err
	}
	e.processingStatus = string(ps)

	return e, nil
}

// scanCard scans a single row into a Card struct.
func scanCard(row scanner) (*card.Card, error) {
	var (
		c                   card.Card
		cardType            string
		url                 sql.NullString
		fileID              sql.NullString
		fileMetadataJSON    sql.NullString
		colorsJSON          sql.NullString
		tagsJSON            sql.NullString
		aiTagsJSON          sql.NullString
		aiSummary           sql.NullString
		aiTranscript        sql.NullString
		thumbnailID         sql.NullString
		metadataJSON        string
		metadataTitle       sql.NullString
		metadataDescription sql.NullString
		metadataStatus      string
		processingJSON      string
		deletedAt           sql.NullInt64
	)

	err := row.Scan(
		&c.ID, &c.UserID, &cardType, &c.Content, &url, &fileID, &fileMetadataJSON,
		&colorsJSON, &tagsJSON, &aiTagsJSON, &aiSummary, &aiTranscript,
		&thumbnailID, &metadataJSON, &metadataTitle, &metadataDescription,
		&metadataStatus, &processingJSON, &c.IsFavorited,
		&c.CreatedAt, &c.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Type = card.Type(cardType)
	c.URL = fromNullString(url)
	c.FileID = fromNullString(fileID)
	c.AISummary = fromNullString(aiSummary)
	c.AITranscript = fromNullString(aiTranscript)
	c.ThumbnailID = fromNullString(thumbnailID)
	c.MetadataTitle = fromNullString(metadataTitle)
	c.MetadataDescription = fromNullString(metadataDescription)
	c.MetadataStatus = card.MetadataStatus(metadataStatus)
	c.IsDeleted = deletedAt.Valid

	if fileMetadataJSON.Valid && fileMetadataJSON.String != "" {
		c.FileMetadata = &card.FileMetadata{}
		if err := json.Unmarshal([]byte(fileMetadataJSON.String), c.FileMetadata); err != nil {
			return nil, err
		}
	}
	for _, f := range []struct {
		src sql.NullString
		dst *[]string
	}{
		{colorsJSON, &c.Colors},
		{tagsJSON, &c.Tags},
		{aiTagsJSON, &c.AITags},
	} {
		if f.src.Valid && f.src.String != "" {
			if err := json.Unmarshal([]byte(f.src.String), f.dst); err != nil {
				return nil, err
			}
		}
	}
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &c.Metadata); err != nil {
			return nil, err
		}
	}
	if processingJSON != "" {
		if err := json.Unmarshal([]byte(processingJSON), &c.ProcessingStatus); err != nil {
			return nil, err
		}
	}

	return &c, nil
}

func toNullJSON(v any) (sql.NullString, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func stringsToNullJSON(s []string) (sql.NullString, error) {
	if len(s) == 0 {
		return sql.NullString{}, nil
	}
	return toNullJSON(s)
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
