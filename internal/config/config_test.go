package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	def := DefaultConfig()
	if cfg.Storage.Backend != BackendFile {
		t.Errorf("Storage.Backend = %q, want %q", cfg.Storage.Backend, BackendFile)
	}
	if cfg.Scrape.TimeoutSeconds != def.Scrape.TimeoutSeconds {
		t.Errorf("Scrape.TimeoutSeconds = %d, want %d", cfg.Scrape.TimeoutSeconds, def.Scrape.TimeoutSeconds)
	}
	if cfg.BackfillLimit != def.BackfillLimit {
		t.Errorf("BackfillLimit = %d, want %d", cfg.BackfillLimit, def.BackfillLimit)
	}
	if cfg.Admin.Port != def.Admin.Port {
		t.Errorf("Admin.Port = %d, want %d", cfg.Admin.Port, def.Admin.Port)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{
		"backfill_limit": 5,
		"scrape": {"timeout_seconds": 3},
		"storage": {"backend": "s3", "s3": {"bucket": "cards", "region": "sfo3"}}
	}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BackfillLimit != 5 {
		t.Errorf("BackfillLimit = %d, want 5", cfg.BackfillLimit)
	}
	if cfg.Scrape.TimeoutSeconds != 3 {
		t.Errorf("Scrape.TimeoutSeconds = %d, want 3", cfg.Scrape.TimeoutSeconds)
	}
	if cfg.Scrape.UserAgent != DefaultConfig().Scrape.UserAgent {
		t.Errorf("Scrape.UserAgent = %q, want default", cfg.Scrape.UserAgent)
	}
	if cfg.Storage.Backend != BackendS3 || cfg.Storage.S3.Bucket != "cards" || cfg.Storage.S3.Region != "sfo3" {
		t.Errorf("Storage = %+v, want s3 backend with bucket cards in sfo3", cfg.Storage)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{not json}`)

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoad_DisabledTools(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"disabled_tools": ["card_delete", "pipeline_backfill"]}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.DisabledTools) != 2 {
		t.Fatalf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
	if cfg.DisabledTools[0] != "card_delete" {
		t.Errorf("DisabledTools[0] = %q, want %q", cfg.DisabledTools[0], "card_delete")
	}
	if cfg.DisabledTools[1] != "pipeline_backfill" {
		t.Errorf("DisabledTools[1] = %q, want %q", cfg.DisabledTools[1], "pipeline_backfill")
	}
}

func TestLoad_EnvOverridesCredentials(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"storage": {"s3": {"access_key_id": "from-file", "secret_access_key": "file-secret"}}}`)
	t.Setenv(EnvS3AccessKeyID, "from-env")
	t.Setenv(EnvS3SecretAccessKey, "")

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.S3.AccessKeyID != "from-env" {
		t.Errorf("AccessKeyID = %q, want from-env", cfg.Storage.S3.AccessKeyID)
	}
	if cfg.Storage.S3.SecretAccessKey != "file-secret" {
		t.Errorf("SecretAccessKey = %q, want file value when env is empty", cfg.Storage.S3.SecretAccessKey)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	env := map[string]string{
		EnvS3AccessKeyID:     " key ",
		EnvS3SecretAccessKey: "secret",
	}
	ApplyEnv(cfg, func(k string) string { return env[k] })

	if cfg.Storage.S3.AccessKeyID != "key" || cfg.Storage.S3.SecretAccessKey != "secret" {
		t.Errorf("S3 = %+v, want trimmed env credentials", cfg.Storage.S3)
	}
}

func TestLoadWithRepo_BothPresent(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()

	writeConfig(t, globalDir, `{"backfill_limit": 80, "disabled_tools": ["card_delete"]}`)
	writeConfig(t, filepath.Join(repoRoot, ".trove"), `{"backfill_limit": 10, "disabled_tools": ["pipeline_backfill"]}`)

	cfg, err := LoadWithRepo(globalDir, repoRoot)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	if cfg.BackfillLimit != 10 {
		t.Errorf("BackfillLimit = %d, want 10 (repo override)", cfg.BackfillLimit)
	}
	if len(cfg.DisabledTools) != 2 {
		t.Errorf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
}

func TestLoadWithRepo_OnlyGlobal(t *testing.T) {
	globalDir := t.TempDir()
	repoDir := t.TempDir()

	writeConfig(t, globalDir, `{"status_sample_limit": 7, "disabled_tools": ["card_delete"]}`)

	cfg, err := LoadWithRepo(globalDir, repoDir)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	if cfg.StatusSampleLimit != 7 {
		t.Errorf("StatusSampleLimit = %d, want 7", cfg.StatusSampleLimit)
	}
	if len(cfg.DisabledTools) != 1 || cfg.DisabledTools[0] != "card_delete" {
		t.Errorf("DisabledTools = %v, want [card_delete]", cfg.DisabledTools)
	}
}

func TestLoadWithRepo_NeitherPresent(t *testing.T) {
	cfg, err := LoadWithRepo(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	if cfg.BackfillLimit != DefaultConfig().BackfillLimit {
		t.Errorf("BackfillLimit = %d, want default", cfg.BackfillLimit)
	}
	if len(cfg.DisabledTools) != 0 {
		t.Errorf("DisabledTools = %v, want empty", cfg.DisabledTools)
	}
}

func TestMerge_ScalarOverride(t *testing.T) {
	base := &Config{BackfillLimit: 50, DBMaxOpenConns: 5, Admin: AdminConfig{Bind: "127.0.0.1", Port: 8377}}
	overlay := &Config{BackfillLimit: 5, Admin: AdminConfig{Port: 9000}}

	result := Merge(base, overlay)

	if result.BackfillLimit != 5 {
		t.Errorf("BackfillLimit = %d, want 5 (overlay)", result.BackfillLimit)
	}
	if result.DBMaxOpenConns != 5 {
		t.Errorf("DBMaxOpenConns = %d, want 5 (base, overlay is zero)", result.DBMaxOpenConns)
	}
	if result.Admin.Bind != "127.0.0.1" || result.Admin.Port != 9000 {
		t.Errorf("Admin = %+v, want base bind with overlay port", result.Admin)
	}
}

func TestMerge_BooleanOr(t *testing.T) {
	base := &Config{Debug: true}
	overlay := &Config{Storage: StorageConfig{S3: S3Config{UsePathStyle: true}}}

	result := Merge(base, overlay)

	if !result.Debug {
		t.Error("Debug should be true (base OR overlay)")
	}
	if !result.Storage.S3.UsePathStyle {
		t.Error("UsePathStyle should be true (base OR overlay)")
	}
}

func TestMerge_ArrayMergeDedup(t *testing.T) {
	base := &Config{DisabledTools: []string{"card_delete", "pipeline_backfill"}}
	overlay := &Config{DisabledTools: []string{" pipeline_backfill ", "card_edit"}}

	result := Merge(base, overlay)

	if len(result.DisabledTools) != 3 {
		t.Errorf("DisabledTools length = %d, want 3 (merged, deduped)", len(result.DisabledTools))
	}

	has := make(map[string]bool)
	for _, s := range result.DisabledTools {
		has[s] = true
	}
	for _, want := range []string{"card_delete", "pipeline_backfill", "card_edit"} {
		if !has[want] {
			t.Errorf("DisabledTools missing %q", want)
		}
	}
}

func TestFindRepoConfig_InParentDir(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, filepath.Join(tmpDir, ".trove"), `{}`)
	configPath := filepath.Join(tmpDir, ".trove", "config.json")

	subdir := filepath.Join(tmpDir, "subdir", "deeper")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	if found := FindRepoConfig(subdir); found != configPath {
		t.Errorf("FindRepoConfig() = %q, want %q", found, configPath)
	}
	if found := FindRepoConfig(tmpDir); found != configPath {
		t.Errorf("FindRepoConfig() = %q, want %q", found, configPath)
	}
}

func TestFindRepoConfig_NotFound(t *testing.T) {
	if found := FindRepoConfig(t.TempDir()); found != "" {
		t.Errorf("FindRepoConfig() = %q, want empty string", found)
	}
}
