package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/trove/internal/card"
	"github.com/hpungsan/trove/internal/config"
	"github.com/hpungsan/trove/internal/errors"
	"github.com/hpungsan/trove/internal/ops"
	"github.com/hpungsan/trove/internal/web"
	"github.com/hpungsan/trove/internal/worker"
)

// maxStdinBytes bounds content and candidate JSON read from stdin.
const maxStdinBytes = 1 << 20

// newCLIApp creates the CLI application with all commands.
func newCLIApp(deps *ops.Deps, cfg *config.Config, scraper ops.Scraper) *cli.App {
	app := &cli.App{
		Name:    "trove",
		Usage:   "Card enrichment pipeline",
		Version: Version,
		Commands: []*cli.Command{
			addCmd(deps),
			showCmd(deps),
			editCmd(deps),
			deleteCmd(deps),
			classifyCmd(deps),
			mergeMetadataCmd(deps),
			screenshotCmd(deps),
			fetchMetadataCmd(deps, scraper),
			claimCmd(deps),
			completeCmd(deps),
			failCmd(deps),
			resetCmd(deps),
			backfillCmd(deps, cfg),
			statusCmd(deps, cfg),
			serveCmd(deps, cfg, scraper),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// stageFlag is the --stage flag of the worker commands.
func stageFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "stage",
		Aliases:  []string{"s"},
		Required: true,
		Usage:    "Stage: classify|categorize|metadata|renderables",
	}
}

// addCmd creates the add command.
func addCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Create a card and classify it (content may be piped via stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "content", Aliases: []string{"c"}, Usage: "Card text"},
			&cli.StringFlag{Name: "url", Aliases: []string{"u"}, Usage: "Attached URL"},
			&cli.StringFlag{Name: "file-id", Usage: "Attached file reference"},
			&cli.StringFlag{Name: "mime", Usage: "MIME type of the attached file"},
			&cli.StringFlag{Name: "type", Usage: "Client type guess (classification replaces it)"},
			&cli.StringFlag{Name: "user", Usage: "Owner user ID"},
			&cli.StringFlag{Name: "tags", Usage: "Comma-separated tags"},
			&cli.StringFlag{Name: "colors", Usage: "Comma-separated color codes"},
		},
		Action: func(c *cli.Context) error {
			input := ops.CreateInput{
				UserID:  c.String("user"),
				Type:    c.String("type"),
				Content: c.String("content"),
				URL:     optionalFlag(c, "url"),
				FileID:  optionalFlag(c, "file-id"),
				Tags:    parseList(c.String("tags")),
				Colors:  parseList(c.String("colors")),
			}
			if mime := c.String("mime"); mime != "" {
				input.FileMetadata = &card.FileMetadata{MimeType: mime}
			}

			if input.Content == "" && stdinHasData() {
				text, err := readStdin(maxStdinBytes)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				input.Content = text
			}

			output, err := ops.Create(c.Context, deps, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// showCmd creates the show command.
func showCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show a card",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include soft-deleted cards"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Fetch(c.Context, deps.DB, ops.FetchInput{
				ID:             c.Args().First(),
				IncludeDeleted: c.Bool("include-deleted"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// editCmd creates the edit command.
func editCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:      "edit",
		Usage:     "Edit a card; changed content, URL or file re-runs classification",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "content", Aliases: []string{"c"}, Usage: "New text"},
			&cli.StringFlag{Name: "url", Aliases: []string{"u"}, Usage: "New URL (empty clears it)"},
			&cli.StringFlag{Name: "tags", Usage: "New comma-separated tags"},
			&cli.BoolFlag{Name: "favorite", Usage: "Mark or unmark as favorite"},
		},
		Action: func(c *cli.Context) error {
			input := ops.EditInput{
				ID:      c.Args().First(),
				Content: optionalFlag(c, "content"),
				URL:     optionalFlag(c, "url"),
			}
			if c.IsSet("tags") {
				input.Tags = parseList(c.String("tags"))
				if input.Tags == nil {
					input.Tags = []string{}
				}
			}
			if c.IsSet("favorite") {
				fav := c.Bool("favorite")
				input.IsFavorited = &fav
			}

			output, err := ops.Edit(c.Context, deps, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Soft-delete a card",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			output, err := ops.Delete(c.Context, deps, ops.DeleteInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// classifyCmd creates the classify command.
func classifyCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:      "classify",
		Usage:     "Re-run classification for a card",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			output, err := ops.Classify(c.Context, deps, ops.ClassifyInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// mergeMetadataCmd creates the merge-metadata command.
func mergeMetadataCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:      "merge-metadata",
		Usage:     "Merge a scraped link preview (candidate JSON on stdin)",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "status", Value: string(card.MetadataCompleted), Usage: "Outcome: completed|failed"},
		},
		Action: func(c *cli.Context) error {
			if !stdinHasData() {
				return outputError(errors.NewInvalidRequest("candidate JSON must be piped via stdin"))
			}
			raw, err := readStdin(maxStdinBytes)
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}

			var candidate card.LinkPreview
			if err := json.Unmarshal([]byte(raw), &candidate); err != nil {
				return outputError(errors.NewInvalidRequest("invalid candidate JSON: " + err.Error()))
			}

			output, err := ops.MergeLinkMetadata(c.Context, deps, ops.MergeLinkMetadataInput{
				ID:        c.Args().First(),
				Candidate: candidate,
				Status:    card.MetadataStatus(c.String("status")),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// screenshotCmd creates the screenshot command.
func screenshotCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:      "screenshot",
		Usage:     "Record a page screenshot asset for a link card",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "storage-id", Required: true, Usage: "Asset ID of the screenshot"},
			&cli.IntFlag{Name: "width", Usage: "Width in pixels"},
			&cli.IntFlag{Name: "height", Usage: "Height in pixels"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.MergeScreenshot(c.Context, deps, ops.MergeScreenshotInput{
				ID:        c.Args().First(),
				StorageID: c.String("storage-id"),
				Width:     c.Int("width"),
				Height:    c.Int("height"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// fetchMetadataCmd creates the fetch-metadata command.
func fetchMetadataCmd(deps *ops.Deps, scraper ops.Scraper) *cli.Command {
	return &cli.Command{
		Name:      "fetch-metadata",
		Usage:     "Fetch and merge the link preview for a card",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Usage: "Refetch even if a preview exists"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.FetchLinkMetadata(c.Context, deps, scraper, ops.FetchLinkMetadataInput{
				ID:    c.Args().First(),
				Force: c.Bool("force"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// claimCmd creates the claim command.
func claimCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:      "claim",
		Usage:     "Move a pending stage to in_progress",
		ArgsUsage: "<id>",
		Flags:     []cli.Flag{stageFlag()},
		Action: func(c *cli.Context) error {
			output, err := ops.ClaimStage(c.Context, deps, ops.StageInput{
				ID:    c.Args().First(),
				Stage: c.String("stage"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// completeCmd creates the complete command.
func completeCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:      "complete",
		Usage:     "Complete an in-progress stage with its outputs",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			stageFlag(),
			&cli.Float64Flag{Name: "confidence", Usage: "Confidence (classify and categorize only)"},
			&cli.StringFlag{Name: "ai-tags", Usage: "Comma-separated AI tags"},
			&cli.StringFlag{Name: "summary", Usage: "AI summary"},
			&cli.StringFlag{Name: "transcript", Usage: "AI transcript"},
			&cli.StringFlag{Name: "category", Usage: "Link category"},
			&cli.StringFlag{Name: "thumbnail", Usage: "Thumbnail asset ID"},
		},
		Action: func(c *cli.Context) error {
			input := ops.CompleteStageInput{
				ID:           c.Args().First(),
				Stage:        c.String("stage"),
				AISummary:    optionalFlag(c, "summary"),
				AITranscript: optionalFlag(c, "transcript"),
				LinkCategory: optionalFlag(c, "category"),
				ThumbnailID:  optionalFlag(c, "thumbnail"),
			}
			if c.IsSet("confidence") {
				conf := c.Float64("confidence")
				input.Confidence = &conf
			}
			if c.IsSet("ai-tags") {
				input.AITags = parseList(c.String("ai-tags"))
				if input.AITags == nil {
					input.AITags = []string{}
				}
			}

			output, err := ops.CompleteStage(c.Context, deps, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// failCmd creates the fail command.
func failCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:      "fail",
		Usage:     "Mark an in-progress stage as failed",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			stageFlag(),
			&cli.StringFlag{Name: "error", Aliases: []string{"e"}, Usage: "Failure message"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.FailStage(c.Context, deps, ops.FailStageInput{
				ID:    c.Args().First(),
				Stage: c.String("stage"),
				Error: c.String("error"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// resetCmd creates the reset command.
func resetCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:      "reset",
		Usage:     "Clear AI output and restart the pipeline for a card",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "refresh", Usage: "Reclassify inline instead of scheduling"},
		},
		Action: func(c *cli.Context) error {
			var (
				output *ops.ResetOutput
				err    error
			)
			if c.Bool("refresh") {
				output, err = ops.Refresh(c.Context, deps, ops.RefreshInput{ID: c.Args().First()})
			} else {
				output, err = ops.Reset(c.Context, deps, ops.ResetInput{ID: c.Args().First()})
			}
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// backfillCmd creates the backfill command.
func backfillCmd(deps *ops.Deps, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "backfill",
		Usage: "Reset cards missing AI tags or summary, oldest first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum cards to reset"},
		},
		Action: func(c *cli.Context) error {
			limit := c.Int("limit")
			if limit == 0 && cfg != nil {
				limit = cfg.BackfillLimit
			}
			output, err := ops.Backfill(c.Context, deps, ops.BackfillInput{Limit: limit})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// statusCmd creates the status command.
func statusCmd(deps *ops.Deps, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show per-stage counts and cards missing AI output",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "sample-limit", Usage: "Maximum sampled cards"},
		},
		Action: func(c *cli.Context) error {
			limit := c.Int("sample-limit")
			if limit == 0 && cfg != nil {
				limit = cfg.StatusSampleLimit
			}
			output, err := ops.Status(c.Context, deps.DB, ops.StatusInput{SampleLimit: limit})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(deps *ops.Deps, cfg *config.Config, scraper ops.Scraper) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the admin HTTP API and the link preview worker",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Bind address (default from config)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Port (default from config)"},
			&cli.DurationFlag{Name: "interval", Value: 30 * time.Second, Usage: "Metadata worker poll interval"},
			&cli.IntFlag{Name: "batch", Value: 10, Usage: "Cards fetched per poll"},
			&cli.BoolFlag{Name: "no-worker", Usage: "Serve the API without the metadata worker"},
		},
		Action: func(c *cli.Context) error {
			serveCfg := *cfg
			if bind := c.String("bind"); bind != "" {
				serveCfg.Admin.Bind = bind
			}
			if port := c.Int("port"); port != 0 {
				serveCfg.Admin.Port = port
			}

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			done := make(chan struct{})
			if c.Bool("no-worker") {
				close(done)
			} else {
				w := worker.NewMetadataWorker(deps, scraper, worker.Config{
					Interval:  c.Duration("interval"),
					BatchSize: c.Int("batch"),
				}, deps.Logger)
				go func() {
					defer close(done)
					w.Run(ctx)
				}()
			}

			srv := web.NewServer(deps, &serveCfg, scraper, Version)
			err := web.Run(ctx, srv, deps.Logger)
			stop()
			<-done
			if err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if te, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", te.Code, err.Error()), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// optionalFlag returns a pointer to the flag value if it was set.
func optionalFlag(c *cli.Context, name string) *string {
	if !c.IsSet(name) {
		return nil
	}
	v := c.String(name)
	return &v
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads stdin up to maxBytes and trims surrounding whitespace.
func readStdin(maxBytes int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, maxBytes+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > maxBytes {
		return "", fmt.Errorf("stdin exceeds %d bytes", maxBytes)
	}
	return strings.TrimSpace(string(data)), nil
}

// parseList splits a comma-separated string into trimmed, non-empty items.
func parseList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			items = append(items, t)
		}
	}
	if len(items) == 0 {
		return nil
	}
	return items
}
