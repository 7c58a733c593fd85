package ops

import (
	"context"
	"crypto/rand"
	"database/sql"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/trove/internal/blob"
	"github.com/hpungsan/trove/internal/errors"
	"github.com/hpungsan/trove/internal/logger"
	"github.com/hpungsan/trove/internal/metrics"
)

// Limits for sweep and reporting operations.
const (
	DefaultBackfillLimit     = 50
	MaxBackfillLimit         = 500
	DefaultStatusSampleLimit = 20
	MaxStatusSampleLimit     = 200
)

// Sanitized field lengths for scraped link previews.
const (
	MaxTitleChars       = 300
	MaxDescriptionChars = 1000
	MaxSiteNameChars    = 200
	MaxErrorChars       = 500
)

// Scheduler starts the pipeline for a card whose classify stage was reset
// to pending. A nil Scheduler in Deps classifies inline.
type Scheduler interface {
	ScheduleClassify(ctx context.Context, cardID string) error
}

// DeferredScheduler leaves pending cards for an external classify worker.
type DeferredScheduler struct{}

func (DeferredScheduler) ScheduleClassify(context.Context, string) error { return nil }

// Deps bundles the collaborators operations need. Only DB is required.
type Deps struct {
	DB        *sql.DB
	Blobs     blob.Store
	Logger    logger.Logger
	Metrics   *metrics.Metrics
	Scheduler Scheduler

	// Now overrides the clock in tests.
	Now func() time.Time
}

// nowMillis returns the current time in Unix milliseconds.
func (d *Deps) nowMillis() int64 {
	if d.Now != nil {
		return d.Now().UnixMilli()
	}
	return time.Now().UnixMilli()
}

func (d *Deps) log() logger.Logger {
	if d.Logger == nil {
		return logger.NewNopLogger()
	}
	return d.Logger
}

// releaseAsset deletes a superseded asset. Failures are logged and counted,
// never returned: the record write that orphaned the asset already committed.
func (d *Deps) releaseAsset(ctx context.Context, cardID, assetID string) bool {
	if assetID == "" || d.Blobs == nil {
		return false
	}
	if err := d.Blobs.Delete(ctx, assetID); err != nil {
		d.Metrics.AssetDeleteFailed()
		d.log().Warn("asset delete failed",
			logger.CardID(cardID),
			logger.String("asset_id", assetID),
			logger.Error(errors.NewStorageDeleteFailed(assetID, err)),
		)
		return false
	}
	return true
}

// scheduleClassify hands the card to the Scheduler, or classifies inline
// when none is configured. The returned output is nil when deferred.
func (d *Deps) scheduleClassify(ctx context.Context, cardID string) (*ClassifyOutput, error) {
	if d.Scheduler != nil {
		return nil, d.Scheduler.ScheduleClassify(ctx, cardID)
	}
	return Classify(ctx, d, ClassifyInput{ID: cardID})
}

// requireID trims and validates a card ID argument.
func requireID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.NewInvalidRequest("id is required")
	}
	return id, nil
}

// generateULID generates a new ULID.
func generateULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// cleanOptionalString trims s and returns nil when it is empty.
func cleanOptionalString(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// cleanTags trims and deduplicates tags, dropping empties.
func cleanTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func ptrValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
