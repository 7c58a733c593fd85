package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hpungsan/trove/internal/blob"
	"github.com/hpungsan/trove/internal/config"
	"github.com/hpungsan/trove/internal/db"
	"github.com/hpungsan/trove/internal/logger"
	"github.com/hpungsan/trove/internal/mcp"
	"github.com/hpungsan/trove/internal/metrics"
	"github.com/hpungsan/trove/internal/ops"
	"github.com/hpungsan/trove/internal/scrape"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"add": true, "show": true, "edit": true, "delete": true, "classify": true,
	"merge-metadata": true, "screenshot": true, "fetch-metadata": true,
	"claim": true, "complete": true, "fail": true,
	"reset": true, "backfill": true, "status": true, "serve": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   _
  | |_ _ __ _____   _____
  | __| '__/ _ \ \ / / _ \
  | |_| | | (_) \ V /  __/
   \__|_|  \___/ \_/ \___|

  Card enrichment pipeline

  Usage: trove <command> [options]
         trove --help

  MCP server mode requires piped input.`)
}

// openBlobStore selects the asset backend named in cfg.
func openBlobStore(ctx context.Context, baseDir string, cfg *config.Config) (blob.Store, error) {
	switch cfg.Storage.Backend {
	case "", config.BackendFile:
		dir := cfg.Storage.BasePath
		if dir == "" {
			dir = filepath.Join(baseDir, "assets")
		}
		return blob.NewFileStore(dir)
	case config.BackendS3:
		s3cfg := cfg.Storage.S3
		return blob.NewS3Store(ctx, blob.S3Config{
			Endpoint:        s3cfg.Endpoint,
			Region:          s3cfg.Region,
			Bucket:          s3cfg.Bucket,
			Prefix:          s3cfg.Prefix,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
			UsePathStyle:    s3cfg.UsePathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// newScraper builds the link preview fetcher from cfg.
func newScraper(cfg *config.Config, blobs blob.Store, log logger.Logger) *scrape.Scraper {
	return scrape.New(scrape.Config{
		Timeout:       time.Duration(cfg.Scrape.TimeoutSeconds) * time.Second,
		MaxImageBytes: cfg.Scrape.MaxImageBytes,
		UserAgent:     cfg.Scrape.UserAgent,
	}, blobs, log)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil, nil, nil)
		if err := app.Run(os.Args); err != nil {
			fail("%v", err)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fail("could not determine home directory: %v", err)
	}
	baseDir := filepath.Join(homeDir, ".trove")

	cwd, err := os.Getwd()
	if err != nil {
		fail("could not determine working directory: %v", err)
	}
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fail("failed to load config: %v", err)
	}

	log, err := logger.NewLogger(cfg.Debug)
	if err != nil {
		fail("failed to create logger: %v", err)
	}
	defer func() { _ = log.Sync() }()

	database, err := db.Init(baseDir)
	if err != nil {
		fail("failed to initialize database: %v", err)
	}
	defer database.Close()
	db.ConfigurePool(database, cfg)

	blobs, err := openBlobStore(context.Background(), baseDir, cfg)
	if err != nil {
		fail("failed to open asset storage: %v", err)
	}

	deps := &ops.Deps{
		DB:      database,
		Blobs:   blobs,
		Logger:  log,
		Metrics: metrics.New(),
	}
	scraper := newScraper(cfg, blobs, log)

	// CLI mode: known subcommand
	if isCLIMode() {
		app := newCLIApp(deps, cfg, scraper)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'trove --help' for usage.\n")
		os.Exit(1)
	}

	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		log.Warn("ignoring unknown tools in disabled_tools", logger.Strings("tools", unknown))
	}
	if unknown := mcp.ValidateDisabledTypes(cfg.DisabledTypes); len(unknown) > 0 {
		log.Warn("ignoring unknown groups in disabled_types", logger.Strings("types", unknown))
	}

	// MCP server mode (default)
	if err := mcp.Run(deps, cfg, scraper, Version); err != nil {
		fail("%v", err)
	}
}
