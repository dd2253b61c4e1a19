package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
agent:
  name: Mathlete
  role: Math Tutor
  goal: Solve math problems
  backstory: A patient tutor.
  prompt_type: cot
  max_iterations: 5
generator:
  model: llama3.2:3b
  provider: ollama
critic:
  model: gpt-4o-mini
  provider: openai
  supports_schema: true
  supports_function_calling: true
results_dir: out
archive_db: runs.db
log_level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Agent.Name != "Mathlete" {
		t.Errorf("Agent.Name = %q, want Mathlete", cfg.Agent.Name)
	}
	if cfg.Agent.PromptType != "cot" {
		t.Errorf("Agent.PromptType = %q, want cot", cfg.Agent.PromptType)
	}
	if cfg.Agent.MaxIterations != 5 {
		t.Errorf("Agent.MaxIterations = %d, want 5", cfg.Agent.MaxIterations)
	}
	if cfg.Generator.Model != "llama3.2:3b" {
		t.Errorf("Generator.Model = %q", cfg.Generator.Model)
	}
	if !cfg.Critic.SupportsSchema || !cfg.Critic.SupportsFunctionCalling {
		t.Errorf("Critic caps = %+v, want both true", cfg.Critic)
	}
	if cfg.ArchiveDB != "runs.db" {
		t.Errorf("ArchiveDB = %q, want runs.db", cfg.ArchiveDB)
	}
}

func TestLoad_DefaultsPreservedForOmittedFields(t *testing.T) {
	path := writeConfig(t, `
agent:
  name: Minimal
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Agent.Name != "Minimal" {
		t.Errorf("Agent.Name = %q, want Minimal", cfg.Agent.Name)
	}
	// Unset fields keep their defaults.
	if cfg.Agent.MaxIterations != 3 {
		t.Errorf("MaxIterations = %d, want default 3", cfg.Agent.MaxIterations)
	}
	if cfg.Generator.Provider != "ollama" {
		t.Errorf("Generator.Provider = %q, want default ollama", cfg.Generator.Provider)
	}
	if cfg.ResultsDir != "prompt_results" {
		t.Errorf("ResultsDir = %q, want default prompt_results", cfg.ResultsDir)
	}
}

func TestLoad_ExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("TEST_REFINERY_MODEL", "qwen3:8b")
	path := writeConfig(t, `
generator:
  model: ${TEST_REFINERY_MODEL}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Generator.Model != "qwen3:8b" {
		t.Errorf("Generator.Model = %q, want env-expanded qwen3:8b", cfg.Generator.Model)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing explicit config path")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "default is valid", mutate: func(c *Config) {}},
		{
			name:    "zero iterations",
			mutate:  func(c *Config) { c.Agent.MaxIterations = 0 },
			wantErr: "max_iterations",
		},
		{
			name:    "missing generator model",
			mutate:  func(c *Config) { c.Generator.Model = "" },
			wantErr: "generator.model",
		},
		{
			name:    "missing critic model",
			mutate:  func(c *Config) { c.Critic.Model = "" },
			wantErr: "critic.model",
		},
		{
			name:    "missing results dir",
			mutate:  func(c *Config) { c.ResultsDir = "" },
			wantErr: "results_dir",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

// --- logging tests ---

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"trace", LevelTrace, false},
		{"debug", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"WARN", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"  debug  ", slog.LevelDebug, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseLogLevel(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseLogLevel(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestReplaceLogLevelNames(t *testing.T) {
	attr := slog.Attr{Key: slog.LevelKey, Value: slog.AnyValue(LevelTrace)}
	got := ReplaceLogLevelNames(nil, attr)
	if got.Value.String() != "TRACE" {
		t.Errorf("trace level rendered as %q, want TRACE", got.Value.String())
	}

	// Standard levels pass through untouched.
	attr = slog.Attr{Key: slog.LevelKey, Value: slog.AnyValue(slog.LevelInfo)}
	got = ReplaceLogLevelNames(nil, attr)
	if got.Value.Any() != slog.LevelInfo {
		t.Errorf("info level modified: %v", got.Value)
	}
}
