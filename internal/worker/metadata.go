// Package worker runs the in-process link preview fetcher used by serve mode.
package worker

import (
	"context"
	"time"

	"github.com/hpungsan/trove/internal/errors"
	"github.com/hpungsan/trove/internal/logger"
	"github.com/hpungsan/trove/internal/ops"
)

// Config tunes the metadata worker.
type Config struct {
	// Interval between polls for pending link cards. Default: 30 seconds.
	Interval time.Duration
	// BatchSize caps the cards fetched per poll. Default: 10.
	BatchSize int
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
}

// MetadataWorker polls for link cards with a pending metadata stage and
// fetches their previews one at a time.
type MetadataWorker struct {
	deps    *ops.Deps
	scraper ops.Scraper
	config  Config
	logger  logger.Logger
}

// NewMetadataWorker creates a MetadataWorker. A nil log discards output.
func NewMetadataWorker(deps *ops.Deps, scraper ops.Scraper, cfg Config, log logger.Logger) *MetadataWorker {
	cfg.defaults()
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &MetadataWorker{
		deps:    deps,
		scraper: scraper,
		config:  cfg,
		logger:  log,
	}
}

// Run polls on a ticker until ctx is cancelled.
func (w *MetadataWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce processes one batch and returns how many cards reached a terminal
// metadata state.
func (w *MetadataWorker) RunOnce(ctx context.Context) int {
	ids, err := ops.PendingMetadata(ctx, w.deps, w.config.BatchSize)
	if err != nil {
		w.logger.Error("list pending metadata failed", logger.Error(err))
		return 0
	}

	done := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		out, err := ops.FetchLinkMetadata(ctx, w.deps, w.scraper, ops.FetchLinkMetadataInput{ID: id})
		switch {
		case errors.Is(err, errors.ErrStageConflict), errors.Is(err, errors.ErrNotFound):
			// Another worker claimed it, or the card is gone.
			w.logger.Debug("metadata fetch skipped", logger.CardID(id), logger.Error(err))
		case err != nil:
			w.logger.Warn("metadata fetch failed", logger.CardID(id), logger.Error(err))
		default:
			done++
			w.logger.Debug("metadata fetched",
				logger.CardID(id),
				logger.String("status", string(out.Status)),
				logger.Bool("skipped", out.Skipped),
			)
		}
	}

	if len(ids) > 0 {
		w.logger.Info("metadata batch complete", logger.Int("pending", len(ids)), logger.Int("done", done))
	}
	return done
}
