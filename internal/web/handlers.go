package web

import (
	"net/http"
	"strconv"

	"github.com/hpungsan/trove/internal/config"
	"github.com/hpungsan/trove/internal/errors"
	"github.com/hpungsan/trove/internal/ops"
)

// Handlers contains HTTP route handlers for the admin API.
type Handlers struct {
	deps    *ops.Deps
	cfg     *config.Config
	scraper ops.Scraper
	version string
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.DB.PingContext(r.Context()); err != nil {
		renderError(w, errors.NewInternal(err))
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": h.version})
}

// HandleStatus handles GET /admin/status — stage counts and a sample of
// cards still missing AI output.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntParam(r, "sample_limit", h.cfg.StatusSampleLimit)
	if err != nil {
		renderError(w, err)
		return
	}

	result, err := ops.Status(r.Context(), h.deps.DB, ops.StatusInput{SampleLimit: limit})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleCard handles GET /admin/cards/{id}.
func (h *Handlers) HandleCard(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Fetch(r.Context(), h.deps.DB, ops.FetchInput{
		ID:             r.PathValue("id"),
		IncludeDeleted: parseBoolParam(r, "include_deleted"),
	})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleReset handles POST /admin/cards/{id}/reset — restart the pipeline.
func (h *Handlers) HandleReset(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Reset(r.Context(), h.deps, ops.ResetInput{ID: r.PathValue("id")})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleRefresh handles POST /admin/cards/{id}/refresh — reset and
// reclassify inline.
func (h *Handlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Refresh(r.Context(), h.deps, ops.RefreshInput{ID: r.PathValue("id")})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleFetchMetadata handles POST /admin/cards/{id}/fetch-metadata.
func (h *Handlers) HandleFetchMetadata(w http.ResponseWriter, r *http.Request) {
	result, err := ops.FetchLinkMetadata(r.Context(), h.deps, h.scraper, ops.FetchLinkMetadataInput{
		ID:    r.PathValue("id"),
		Force: parseBoolParam(r, "force"),
	})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleBackfill handles POST /admin/backfill — reset cards missing AI output.
func (h *Handlers) HandleBackfill(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntParam(r, "limit", h.cfg.BackfillLimit)
	if err != nil {
		renderError(w, err)
		return
	}

	result, err := ops.Backfill(r.Context(), h.deps, ops.BackfillInput{Limit: limit})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.NewInvalidRequest(name + " must be an integer")
	}
	return v, nil
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	s := r.URL.Query().Get(name)
	return s == "true" || s == "1"
}
