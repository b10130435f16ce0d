package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if cfg.Evaluator.Provider != "ollama" {
		t.Errorf("expected provider 'ollama', got %q", cfg.Evaluator.Provider)
	}

	if cfg.Evaluator.Model != "qwen2.5:7b" {
		t.Errorf("expected model 'qwen2.5:7b', got %q", cfg.Evaluator.Model)
	}

	if cfg.Insights.Threshold != 2 {
		t.Errorf("expected insights threshold 2, got %d", cfg.Insights.Threshold)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
evaluator:
  provider: gemini
  api_key_env: GEMINI_API_KEY
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.Evaluator.Provider != "gemini" {
		t.Errorf("expected provider 'gemini', got %q", cfg.Evaluator.Provider)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	// Defaults should still be set for unspecified fields
	if cfg.Evaluator.OllamaURL != "http://localhost:11434" {
		t.Errorf("expected default ollama_url, got %q", cfg.Evaluator.OllamaURL)
	}
	if cfg.Evaluator.GeminiModel != "gemini-2.5-flash" {
		t.Errorf("expected default gemini_model, got %q", cfg.Evaluator.GeminiModel)
	}
}

func TestParseRejectsZeroThreshold(t *testing.T) {
	if _, err := parse([]byte("insights:\n  threshold: 0\n")); err == nil {
		t.Error("expected error for zero threshold")
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Evaluator.MaxTokens != 2048 {
		t.Errorf("expected max_tokens 2048 from file, got %d", cfg.Evaluator.MaxTokens)
	}
}

func TestResolveConfigPathExplicitMissing(t *testing.T) {
	if _, err := ResolveConfigPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("REVIEWER_TEST_KEY=secret\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("REVIEWER_TEST_KEY", "")
	os.Unsetenv("REVIEWER_TEST_KEY")

	if err := LoadEnv(path); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if got := os.Getenv("REVIEWER_TEST_KEY"); got != "secret" {
		t.Errorf("expected secret, got %q", got)
	}

	if err := LoadEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("missing .env should not fail: %v", err)
	}
}

func TestGetDataDir(t *testing.T) {
	t.Setenv("BASE_DATA_PATH", "")
	cfg := &Config{}
	defaultDir := cfg.GetDataDir()
	if defaultDir == "" {
		t.Error("expected non-empty default data dir")
	}

	t.Setenv("BASE_DATA_PATH", "/env/path")
	if cfg.GetDataDir() != "/env/path" {
		t.Errorf("expected '/env/path', got %q", cfg.GetDataDir())
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
	if cfg.DatabasePath() != filepath.Join("/custom/path", "reviewer.db") {
		t.Errorf("unexpected database path %q", cfg.DatabasePath())
	}
}
