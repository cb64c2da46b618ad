package config

import (
	"os"
	"path/filepath"
	"testing"
)

// clearEnv blanks every env var resolution reads so tests are hermetic.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"GLIMPSE_DB", "GLIMPSE_SEEDS", "GLIMPSE_LLM", "GLIMPSE_SUPPRESS_REMERGE",
		"OPENROUTER_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestResolveConfigMissingFileIsFine(t *testing.T) {
	clearEnv(t)

	cfg, err := ResolveConfig(ResolveOptions{ConfigPath: "/nonexistent/config.yaml"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if cfg.DBPath.Value != "" {
		t.Errorf("db path = %q, want empty (store supplies the default)", cfg.DBPath.Value)
	}
	if cfg.SuppressReportRemerge {
		t.Error("suppression must default off")
	}
}

func TestResolveConfigFromFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `db_path: /data/glimpse.db
seed_path: /data/seeds.yaml
llm:
  provider: openai/gpt-4o-mini
  api_key: file-key
suppress_report_remerge: true
`)

	cfg, err := ResolveConfig(ResolveOptions{ConfigPath: path})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if cfg.DBPath.Value != "/data/glimpse.db" || cfg.DBPath.Source != SourceConfig {
		t.Errorf("db path = %+v", cfg.DBPath)
	}
	if cfg.LLMProvider.Value != "openai/gpt-4o-mini" {
		t.Errorf("llm provider = %+v", cfg.LLMProvider)
	}
	if !cfg.SuppressReportRemerge {
		t.Error("suppression should be on")
	}
	if key := cfg.APIKeyForProvider("openai/gpt-4o-mini"); key.Value != "file-key" {
		t.Errorf("api key = %+v, want file-key", key)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "db_path: /from/file.db\n")
	t.Setenv("GLIMPSE_DB", "/from/env.db")

	cfg, err := ResolveConfig(ResolveOptions{ConfigPath: path})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if cfg.DBPath.Value != "/from/env.db" || cfg.DBPath.Source != SourceEnv {
		t.Errorf("db path = %+v, want env value", cfg.DBPath)
	}
}

func TestCLIOverridesEverything(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "db_path: /from/file.db\n")
	t.Setenv("GLIMPSE_DB", "/from/env.db")
	t.Setenv("GLIMPSE_LLM", "google/gemini-2.5-flash")

	cfg, err := ResolveConfig(ResolveOptions{
		ConfigPath: path,
		CLIDBPath:  "/from/cli.db",
		CLILLM:     "openai/gpt-4o-mini",
	})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if cfg.DBPath.Value != "/from/cli.db" || cfg.DBPath.Source != SourceCLI {
		t.Errorf("db path = %+v, want cli value", cfg.DBPath)
	}
	if cfg.LLMProvider.Value != "openai/gpt-4o-mini" || cfg.LLMProvider.Source != SourceCLI {
		t.Errorf("llm = %+v, want cli value", cfg.LLMProvider)
	}
}

func TestSuppressRemergeFromEnv(t *testing.T) {
	clearEnv(t)

	for _, v := range []string{"1", "true", "TRUE"} {
		t.Setenv("GLIMPSE_SUPPRESS_REMERGE", v)
		cfg, err := ResolveConfig(ResolveOptions{ConfigPath: "/nonexistent/config.yaml"})
		if err != nil {
			t.Fatalf("resolve failed: %v", err)
		}
		if !cfg.SuppressReportRemerge {
			t.Errorf("value %q should enable suppression", v)
		}
	}

	t.Setenv("GLIMPSE_SUPPRESS_REMERGE", "0")
	cfg, err := ResolveConfig(ResolveOptions{ConfigPath: "/nonexistent/config.yaml"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if cfg.SuppressReportRemerge {
		t.Error("value 0 should not enable suppression")
	}
}

func TestProviderKeysFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("GEMINI_API_KEY", "sk-gemini")

	cfg, err := ResolveConfig(ResolveOptions{ConfigPath: "/nonexistent/config.yaml"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if key := cfg.APIKeyForProvider("openai"); key.Value != "sk-openai" || key.Source != SourceEnv {
		t.Errorf("openai key = %+v", key)
	}
	if key := cfg.APIKeyForProvider("google/gemini-2.5-flash"); key.Value != "sk-gemini" {
		t.Errorf("google key = %+v", key)
	}
	if key := cfg.APIKeyForProvider("openrouter"); key.Value != "" {
		t.Errorf("openrouter key = %+v, want empty", key)
	}
}

func TestBadYAMLFails(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "db_path: [not: valid\n")

	if _, err := ResolveConfig(ResolveOptions{ConfigPath: path}); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestExpandUserPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got := expandUserPath("~/glimpse.db")
	want := filepath.Join(home, "glimpse.db")
	if got != want {
		t.Errorf("expandUserPath = %q, want %q", got, want)
	}
	if got := expandUserPath("/abs/path.db"); got != "/abs/path.db" {
		t.Errorf("absolute path changed: %q", got)
	}
}
