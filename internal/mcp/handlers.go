package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/trove/internal/card"
	"github.com/hpungsan/trove/internal/config"
	"github.com/hpungsan/trove/internal/errors"
	"github.com/hpungsan/trove/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	deps    *ops.Deps
	cfg     *config.Config
	scraper ops.Scraper
}

// NewHandlers creates a new Handlers instance. scraper may be nil, in which
// case pipeline_fetch_metadata reports an invalid request.
func NewHandlers(deps *ops.Deps, cfg *config.Config, scraper ops.Scraper) *Handlers {
	return &Handlers{deps: deps, cfg: cfg, scraper: scraper}
}

// Request types for each tool

// CreateRequest represents the arguments for card_create.
type CreateRequest struct {
	UserID       string             `json:"user_id,omitempty"`
	Type         string             `json:"type,omitempty"`
	Content      string             `json:"content,omitempty"`
	URL          *string            `json:"url,omitempty"`
	FileID       *string            `json:"file_id,omitempty"`
	FileMetadata *card.FileMetadata `json:"file_metadata,omitempty"`
	Colors       []string           `json:"colors,omitempty"`
	Tags         []string           `json:"tags,omitempty"`
}

// IDRequest represents tools that take only a card ID.
type IDRequest struct {
	ID string `json:"id"`
}

// FetchRequest represents the arguments for card_fetch.
type FetchRequest struct {
	ID             string `json:"id"`
	IncludeDeleted bool   `json:"include_deleted,omitempty"`
}

// EditRequest represents the arguments for card_edit.
type EditRequest struct {
	ID           string             `json:"id"`
	Content      *string            `json:"content,omitempty"`
	URL          *string            `json:"url,omitempty"`
	FileID       *string            `json:"file_id,omitempty"`
	FileMetadata *card.FileMetadata `json:"file_metadata,omitempty"`
	Colors       []string           `json:"colors,omitempty"`
	Tags         []string           `json:"tags,omitempty"`
	IsFavorited  *bool              `json:"is_favorited,omitempty"`
}

// UpdateClassificationRequest represents the arguments for pipeline_update_classification.
type UpdateClassificationRequest struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// MergeMetadataRequest represents the arguments for pipeline_merge_metadata.
type MergeMetadataRequest struct {
	ID        string           `json:"id"`
	Candidate card.LinkPreview `json:"candidate"`
	Status    string           `json:"status"`
}

// MergeScreenshotRequest represents the arguments for pipeline_merge_screenshot.
type MergeScreenshotRequest struct {
	ID        string `json:"id"`
	StorageID string `json:"storage_id"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}

// FetchMetadataRequest represents the arguments for pipeline_fetch_metadata.
type FetchMetadataRequest struct {
	ID    string `json:"id"`
	Force bool   `json:"force,omitempty"`
}

// BackfillRequest represents the arguments for pipeline_backfill.
type BackfillRequest struct {
	Limit int `json:"limit,omitempty"`
}

// StageRequest represents the arguments for worker_claim.
type StageRequest struct {
	ID    string `json:"id"`
	Stage string `json:"stage"`
}

// CompleteRequest represents the arguments for worker_complete.
type CompleteRequest struct {
	ID           string   `json:"id"`
	Stage        string   `json:"stage"`
	Confidence   *float64 `json:"confidence,omitempty"`
	AITags       []string `json:"ai_tags,omitempty"`
	AISummary    *string  `json:"ai_summary,omitempty"`
	AITranscript *string  `json:"ai_transcript,omitempty"`
	LinkCategory *string  `json:"link_category,omitempty"`
	ThumbnailID  *string  `json:"thumbnail_id,omitempty"`
}

// FailRequest represents the arguments for worker_fail.
type FailRequest struct {
	ID    string `json:"id"`
	Stage string `json:"stage"`
	Error string `json:"error,omitempty"`
}

// StatusRequest represents the arguments for admin_status.
type StatusRequest struct {
	SampleLimit int `json:"sample_limit,omitempty"`
}

// Handler implementations

// HandleCreate handles the card_create tool call.
func (h *Handlers) HandleCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CreateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Create(ctx, h.deps, ops.CreateInput{
		UserID:       input.UserID,
		Type:         input.Type,
		Content:      input.Content,
		URL:          input.URL,
		FileID:       input.FileID,
		FileMetadata: input.FileMetadata,
		Colors:       input.Colors,
		Tags:         input.Tags,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleFetch handles the card_fetch tool call.
func (h *Handlers) HandleFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FetchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Fetch(ctx, h.deps.DB, ops.FetchInput{
		ID:             input.ID,
		IncludeDeleted: input.IncludeDeleted,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleEdit handles the card_edit tool call.
func (h *Handlers) HandleEdit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[EditRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Edit(ctx, h.deps, ops.EditInput{
		ID:           input.ID,
		Content:      input.Content,
		URL:          input.URL,
		FileID:       input.FileID,
		FileMetadata: input.FileMetadata,
		Colors:       input.Colors,
		Tags:         input.Tags,
		IsFavorited:  input.IsFavorited,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDelete handles the card_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Delete(ctx, h.deps, ops.DeleteInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleClassify handles the card_classify tool call.
func (h *Handlers) HandleClassify(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Classify(ctx, h.deps, ops.ClassifyInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleUpdateClassification handles the pipeline_update_classification tool call.
func (h *Handlers) HandleUpdateClassification(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[UpdateClassificationRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	t, ok := card.ParseType(input.Type)
	if !ok {
		return errorResult(errors.NewInvalidRequest("unknown card type: " + input.Type)), nil
	}

	result, err := ops.UpdateClassification(ctx, h.deps, ops.UpdateClassificationInput{
		ID:         input.ID,
		Type:       t,
		Confidence: input.Confidence,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleMergeMetadata handles the pipeline_merge_metadata tool call.
func (h *Handlers) HandleMergeMetadata(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[MergeMetadataRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.MergeLinkMetadata(ctx, h.deps, ops.MergeLinkMetadataInput{
		ID:        input.ID,
		Candidate: input.Candidate,
		Status:    card.MetadataStatus(input.Status),
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleMergeScreenshot handles the pipeline_merge_screenshot tool call.
func (h *Handlers) HandleMergeScreenshot(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[MergeScreenshotRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.MergeScreenshot(ctx, h.deps, ops.MergeScreenshotInput{
		ID:        input.ID,
		StorageID: input.StorageID,
		Width:     input.Width,
		Height:    input.Height,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleFetchMetadata handles the pipeline_fetch_metadata tool call.
func (h *Handlers) HandleFetchMetadata(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FetchMetadataRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.FetchLinkMetadata(ctx, h.deps, h.scraper, ops.FetchLinkMetadataInput{
		ID:    input.ID,
		Force: input.Force,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleReset handles the pipeline_reset tool call.
func (h *Handlers) HandleReset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Reset(ctx, h.deps, ops.ResetInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleRefresh handles the pipeline_refresh tool call.
func (h *Handlers) HandleRefresh(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Refresh(ctx, h.deps, ops.RefreshInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleBackfill handles the pipeline_backfill tool call.
func (h *Handlers) HandleBackfill(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[BackfillRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	limit := input.Limit
	if limit == 0 && h.cfg != nil {
		limit = h.cfg.BackfillLimit
	}

	result, err := ops.Backfill(ctx, h.deps, ops.BackfillInput{Limit: limit})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleClaim handles the worker_claim tool call.
func (h *Handlers) HandleClaim(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[StageRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ClaimStage(ctx, h.deps, ops.StageInput{ID: input.ID, Stage: input.Stage})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleComplete handles the worker_complete tool call.
func (h *Handlers) HandleComplete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CompleteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.CompleteStage(ctx, h.deps, ops.CompleteStageInput{
		ID:           input.ID,
		Stage:        input.Stage,
		Confidence:   input.Confidence,
		AITags:       input.AITags,
		AISummary:    input.AISummary,
		AITranscript: input.AITranscript,
		LinkCategory: input.LinkCategory,
		ThumbnailID:  input.ThumbnailID,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleFail handles the worker_fail tool call.
func (h *Handlers) HandleFail(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FailRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.FailStage(ctx, h.deps, ops.FailStageInput{
		ID:    input.ID,
		Stage: input.Stage,
		Error: input.Error,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleStatus handles the admin_status tool call.
func (h *Handlers) HandleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[StatusRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	limit := input.SampleLimit
	if limit == 0 && h.cfg != nil {
		limit = h.cfg.StatusSampleLimit
	}

	result, err := ops.Status(ctx, h.deps.DB, ops.StatusInput{SampleLimit: limit})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Details are omitted for INTERNAL errors, which may carry paths or SQL.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if te, ok := errors.As(err); ok {
		errorObj := map[string]any{
			"code":    te.Code,
			"message": te.Message,
			"status":  te.Status,
		}
		if msg := err.Error(); msg != te.Error() {
			// Keep context added by wrapping.
			errorObj["message"] = msg
		}
		if te.Code != errors.ErrInternal && te.Details != nil {
			errorObj["details"] = te.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
