package agentfs_test

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/calvinalkan/agentfs/internal/agentfs"
)

func TestLoadConfig_EmptyPath_ReturnsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := agentfs.LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if !reflect.DeepEqual(cfg, agentfs.DefaultConfig()) {
		t.Fatalf("got %+v, want defaults", cfg)
	}
}

func TestLoadConfig_OverlaysDefaultsAndAbsolutizesBaseDirectories(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")

	jsonc := `{
		// comments and trailing commas are allowed
		"base_directories": ["sandbox"],
		"max_timeout": 60,
	}`

	if err := os.WriteFile(path, []byte(jsonc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Chdir(dir)

	cfg, err := agentfs.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if len(cfg.BaseDirectories) != 1 || !filepath.IsAbs(cfg.BaseDirectories[0]) {
		t.Fatalf("base directory not absolutized: %+v", cfg.BaseDirectories)
	}

	if cfg.MaxTimeout != 60 {
		t.Fatalf("max_timeout = %v, want 60", cfg.MaxTimeout)
	}

	if cfg.DefaultEncoding != "utf-8" {
		t.Fatalf("default_encoding = %q, want default to survive overlay", cfg.DefaultEncoding)
	}
}

func TestLoadConfig_RejectsInvalidTimeoutOrdering(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	if err := os.WriteFile(path, []byte(`{"default_timeout": 100, "max_timeout": 10}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := agentfs.LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for default_timeout > max_timeout")
	}
}

func TestLoadConfig_RejectsInvalidDestructivePolicy(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	if err := os.WriteFile(path, []byte(`{"default_destructive_policy": "maybe"}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := agentfs.LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "allow") {
		t.Fatalf("got %v, want invalid-destructive-policy error", err)
	}
}

func TestLoadConfig_RejectsInvalidSearchConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	if err := os.WriteFile(path, []byte(`{"search": {"enabled": true, "max_results": 0}}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := agentfs.LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "search") {
		t.Fatalf("got %v, want invalid-search-config error", err)
	}
}

func TestLoadConfig_MissingFile_ReturnsError(t *testing.T) {
	t.Parallel()

	_, err := agentfs.LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}
