package mcp

import "github.com/mark3labs/mcp-go/mcp"

var stringItems = mcp.Items(map[string]any{"type": "string"})

var stageEnum = mcp.Enum("classify", "categorize", "metadata", "renderables")

var createToolDef = mcp.NewTool("card_create",
	mcp.WithDescription("Save a new card. The card is classified immediately and its enrichment stages are seeded."),
	mcp.WithString("content", mcp.Description("Free text, a quote, a bare URL or color codes")),
	mcp.WithString("url", mcp.Description("Absolute http(s) URL the card points at")),
	mcp.WithString("file_id", mcp.Description("Reference to an uploaded file")),
	mcp.WithObject("file_metadata", mcp.Description("mime_type, file_name, size, width, height, duration")),
	mcp.WithArray("colors", mcp.Description("Hex color codes"), stringItems),
	mcp.WithArray("tags", mcp.Description("User tags"), stringItems),
	mcp.WithString("type", mcp.Description("Client-side type guess; classification replaces it")),
	mcp.WithString("user_id", mcp.Description("Owner of the card")),
)

var fetchToolDef = mcp.NewTool("card_fetch",
	mcp.WithDescription("Get a card by ID, including processing status and link metadata."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Card ID")),
	mcp.WithBoolean("include_deleted", mcp.Description("Return soft-deleted cards too")),
)

var editToolDef = mcp.NewTool("card_edit",
	mcp.WithDescription("Patch a card. Changing content, url, file or colors sends it back through classification."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Card ID")),
	mcp.WithString("content", mcp.Description("New content")),
	mcp.WithString("url", mcp.Description("New URL; empty string clears it")),
	mcp.WithString("file_id", mcp.Description("New file reference; empty string clears it")),
	mcp.WithObject("file_metadata", mcp.Description("Replacement file metadata")),
	mcp.WithArray("colors", mcp.Description("Replacement color list"), stringItems),
	mcp.WithArray("tags", mcp.Description("Replacement tag list"), stringItems),
	mcp.WithBoolean("is_favorited", mcp.Description("Favorite flag")),
)

var deleteToolDef = mcp.NewTool("card_delete",
	mcp.WithDescription("Soft-delete a card. Workers treat it as missing afterwards."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Card ID")),
)

var classifyToolDef = mcp.NewTool("card_classify",
	mcp.WithDescription("Run the classification rules on a card and commit the result. Quote cards without a URL or file keep their type."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Card ID")),
)

var updateClassificationToolDef = mcp.NewTool("pipeline_update_classification",
	mcp.WithDescription("Commit an externally decided type and confidence, seeding downstream stages."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Card ID")),
	mcp.WithString("type", mcp.Required(), mcp.Description("text, link, image, video, audio, document, palette or quote")),
	mcp.WithNumber("confidence", mcp.Required(), mcp.Description("0 to 1; out-of-range values are clamped"), mcp.Min(0), mcp.Max(1)),
)

var mergeMetadataToolDef = mcp.NewTool("pipeline_merge_metadata",
	mcp.WithDescription("Merge a scraped link preview into the card. Stored images survive candidates without one; replaced assets are deleted."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Card ID")),
	mcp.WithObject("candidate", mcp.Required(), mcp.Description("Link preview fields: title, description, url, site_name, favicon_url, image_url, image_storage_id, image_width, image_height, error")),
	mcp.WithString("status", mcp.Required(), mcp.Enum("completed", "failed"), mcp.Description("Terminal metadata status")),
)

var mergeScreenshotToolDef = mcp.NewTool("pipeline_merge_screenshot",
	mcp.WithDescription("Record a page screenshot for a link card. Other preview fields are left alone."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Card ID")),
	mcp.WithString("storage_id", mcp.Required(), mcp.Description("Blob store ID of the screenshot")),
	mcp.WithNumber("width", mcp.Description("Pixels")),
	mcp.WithNumber("height", mcp.Description("Pixels")),
)

var fetchMetadataToolDef = mcp.NewTool("pipeline_fetch_metadata",
	mcp.WithDescription("Run the metadata stage for a card: claim, scrape, merge and complete or fail."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Card ID")),
	mcp.WithBoolean("force", mcp.Description("Scrape even if a preview was already fetched")),
)

var resetToolDef = mcp.NewTool("pipeline_reset",
	mcp.WithDescription("Clear AI output, release the thumbnail and restart the pipeline at classify."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Card ID")),
)

var refreshToolDef = mcp.NewTool("pipeline_refresh",
	mcp.WithDescription("Reset a card and classify it immediately."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Card ID")),
)

var backfillToolDef = mcp.NewTool("pipeline_backfill",
	mcp.WithDescription("Reset the oldest cards missing AI tags or summary."),
	mcp.WithNumber("limit", mcp.Description("Cards to reset (default: 50, max: 500)")),
)

var claimToolDef = mcp.NewTool("worker_claim",
	mcp.WithDescription("Move a pending stage to in_progress. Fails with STAGE_CONFLICT otherwise."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Card ID")),
	mcp.WithString("stage", mcp.Required(), stageEnum),
)

var completeToolDef = mcp.NewTool("worker_complete",
	mcp.WithDescription("Complete an in_progress stage and store what the worker produced."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Card ID")),
	mcp.WithString("stage", mcp.Required(), stageEnum),
	mcp.WithNumber("confidence", mcp.Description("Recorded for classify and categorize")),
	mcp.WithArray("ai_tags", mcp.Description("Generated tags"), stringItems),
	mcp.WithString("ai_summary", mcp.Description("Generated summary")),
	mcp.WithString("ai_transcript", mcp.Description("Generated transcript")),
	mcp.WithString("link_category", mcp.Description("Category for link cards")),
	mcp.WithString("thumbnail_id", mcp.Description("Blob store ID of the rendered thumbnail")),
)

var failToolDef = mcp.NewTool("worker_fail",
	mcp.WithDescription("Mark an in_progress stage as failed."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Card ID")),
	mcp.WithString("stage", mcp.Required(), stageEnum),
	mcp.WithString("error", mcp.Description("What went wrong")),
)

var statusToolDef = mcp.NewTool("admin_status",
	mcp.WithDescription("Per-stage counts and a sample of cards missing AI metadata with reasons."),
	mcp.WithNumber("sample_limit", mcp.Description("Sample size (default: 20, max: 200)")),
)
