package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
anthropic:
  api_key: test-key
  model: claude-sonnet-4-20250514
defaults:
  mode: parallel
  max_retries: 3
  continue_on_error: true
timeouts:
  decompose: 90s
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Anthropic.APIKey != "test-key" {
		t.Errorf("unexpected api key %q", cfg.Anthropic.APIKey)
	}
	if cfg.Defaults.Mode != "parallel" || cfg.Defaults.MaxRetries != 3 || !cfg.Defaults.ContinueOnError {
		t.Errorf("unexpected defaults: %+v", cfg.Defaults)
	}
	if cfg.Timeouts.Decompose != 90*time.Second {
		t.Errorf("unexpected decompose timeout %v", cfg.Timeouts.Decompose)
	}
	// Untouched keys keep their defaults.
	if cfg.Workers.DefaultCapacity != 2 {
		t.Errorf("expected default capacity 2, got %d", cfg.Workers.DefaultCapacity)
	}
}

func TestLoadFromPathExpandsEnvInAPIKey(t *testing.T) {
	t.Setenv("TW_TEST_KEY", "secret-from-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "anthropic:\n  api_key: ${TW_TEST_KEY}\n")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Anthropic.APIKey != "secret-from-env" {
		t.Errorf("expected env expansion, got %q", cfg.Anthropic.APIKey)
	}
}

func TestLoadFromPathMissingFile(t *testing.T) {
	_, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if cfg.Defaults.Mode != "adaptive" {
		t.Errorf("unexpected default mode %q", cfg.Defaults.Mode)
	}
	if cfg.Timeouts.Request == 0 || cfg.Timeouts.Decompose == 0 {
		t.Error("default timeouts must be non-zero")
	}
}
