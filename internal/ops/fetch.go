package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/trove/internal/card"
	"github.com/hpungsan/trove/internal/db"
)

// FetchInput contains parameters for the Fetch operation.
type FetchInput struct {
	ID             string
	IncludeDeleted bool
}

// Fetch retrieves a card by ID.
func Fetch(ctx context.Context, database *sql.DB, input FetchInput) (*card.Card, error) {
	id, err := requireID(input.ID)
	if err != nil {
		return nil, err
	}
	return db.GetByID(ctx, database, id, input.IncludeDeleted)
}
