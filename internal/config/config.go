package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Storage backends.
const (
	BackendFile = "file"
	BackendS3   = "s3"
)

// Environment variables that override S3 credentials from config files.
const (
	EnvS3AccessKeyID     = "TROVE_S3_ACCESS_KEY_ID"
	EnvS3SecretAccessKey = "TROVE_S3_SECRET_ACCESS_KEY"
)

// Config holds application configuration.
type Config struct {
	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// Debug switches logging to the development console encoder at debug level.
	Debug bool `json:"debug,omitempty"`

	Storage StorageConfig `json:"storage"`
	Scrape  ScrapeConfig  `json:"scrape"`
	Admin   AdminConfig   `json:"admin"`

	// BackfillLimit bounds how many cards one backfill sweep resets.
	BackfillLimit int `json:"backfill_limit,omitempty"`

	// StatusSampleLimit bounds the sample of incomplete cards in status reports.
	StatusSampleLimit int `json:"status_sample_limit,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of tool groups to disable entirely.
	// Known groups: "card", "pipeline", "worker", "admin".
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// StorageConfig selects where assets (preview images, screenshots, thumbnails) live.
type StorageConfig struct {
	// Backend is "file" (default) or "s3".
	Backend string `json:"backend,omitempty"`

	// BasePath is the asset directory for the file backend.
	// Empty means <base dir>/assets.
	BasePath string `json:"base_path,omitempty"`

	S3 S3Config `json:"s3"`
}

// S3Config describes an S3-compatible bucket.
type S3Config struct {
	Endpoint        string `json:"endpoint,omitempty"`
	Region          string `json:"region,omitempty"`
	Bucket          string `json:"bucket,omitempty"`
	Prefix          string `json:"prefix,omitempty"`
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`
	UsePathStyle    bool   `json:"use_path_style,omitempty"`
}

// ScrapeConfig tunes the link preview fetcher.
type ScrapeConfig struct {
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	MaxImageBytes  int64  `json:"max_image_bytes,omitempty"`
	UserAgent      string `json:"user_agent,omitempty"`
}

// AdminConfig is the listen address of the admin HTTP API.
type AdminConfig struct {
	Bind string `json:"bind,omitempty"`
	Port int    `json:"port,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{Backend: BackendFile},
		Scrape: ScrapeConfig{
			TimeoutSeconds: 15,
			MaxImageBytes:  5 << 20,
			UserAgent:      "trove-preview/1.0 (+https://github.com/hpungsan/trove)",
		},
		Admin:             AdminConfig{Bind: "127.0.0.1", Port: 8377},
		BackfillLimit:     50,
		StatusSampleLimit: 20,
	}
}

// Load loads configuration from baseDir/config.json, then applies
// environment overrides. Returns default config if the file doesn't exist.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	ApplyEnv(cfg, os.Getenv)
	return cfg, nil
}

// LoadWithRepo loads configuration from both global (~/.trove) and repo (.trove) directories.
// Repo config is found by walking upward from startDir to find the nearest .trove/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	cfg := Merge(Merge(DefaultConfig(), global), repo)
	ApplyEnv(cfg, os.Getenv)
	return cfg, nil
}

// FindRepoConfig walks upward from startDir to find the nearest .trove/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".trove", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ApplyEnv overrides S3 credentials from the environment so secrets can stay
// out of config files.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvS3AccessKeyID)); v != "" {
		cfg.Storage.S3.AccessKeyID = v
	}
	if v := strings.TrimSpace(getenv(EnvS3SecretAccessKey)); v != "" {
		cfg.Storage.S3.SecretAccessKey = v
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		DBMaxOpenConns:    firstInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns),
		DBMaxIdleConns:    firstInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns),
		BackfillLimit:     firstInt(overlay.BackfillLimit, base.BackfillLimit),
		StatusSampleLimit: firstInt(overlay.StatusSampleLimit, base.StatusSampleLimit),
	}

	// Booleans: overlay wins if true, else base
	result.Debug = base.Debug || overlay.Debug

	result.Storage = StorageConfig{
		Backend:  firstString(overlay.Storage.Backend, base.Storage.Backend),
		BasePath: firstString(overlay.Storage.BasePath, base.Storage.BasePath),
		S3: S3Config{
			Endpoint:        firstString(overlay.Storage.S3.Endpoint, base.Storage.S3.Endpoint),
			Region:          firstString(overlay.Storage.S3.Region, base.Storage.S3.Region),
			Bucket:          firstString(overlay.Storage.S3.Bucket, base.Storage.S3.Bucket),
			Prefix:          firstString(overlay.Storage.S3.Prefix, base.Storage.S3.Prefix),
			AccessKeyID:     firstString(overlay.Storage.S3.AccessKeyID, base.Storage.S3.AccessKeyID),
			SecretAccessKey: firstString(overlay.Storage.S3.SecretAccessKey, base.Storage.S3.SecretAccessKey),
			UsePathStyle:    base.Storage.S3.UsePathStyle || overlay.Storage.S3.UsePathStyle,
		},
	}

	result.Scrape = ScrapeConfig{
		TimeoutSeconds: firstInt(overlay.Scrape.TimeoutSeconds, base.Scrape.TimeoutSeconds),
		MaxImageBytes:  overlay.Scrape.MaxImageBytes,
		UserAgent:      firstString(overlay.Scrape.UserAgent, base.Scrape.UserAgent),
	}
	if result.Scrape.MaxImageBytes == 0 {
		result.Scrape.MaxImageBytes = base.Scrape.MaxImageBytes
	}

	result.Admin = AdminConfig{
		Bind: firstString(overlay.Admin.Bind, base.Admin.Bind),
		Port: firstInt(overlay.Admin.Port, base.Admin.Port),
	}

	// Arrays: merge and deduplicate
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func firstInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func firstString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, list := range [][]string{a, b} {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s != "" && !seen[s] {
				seen[s] = true
				result = append(result, s)
			}
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
