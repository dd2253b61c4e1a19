// Package config handles Refinery configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/refinery/config.yaml, /etc/refinery/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "refinery", "config.yaml"))
	}

	paths = append(paths, "/etc/refinery/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Refinery configuration.
type Config struct {
	Agent      AgentConfig     `yaml:"agent"`
	Generator  BackendConfig   `yaml:"generator"`
	Critic     BackendConfig   `yaml:"critic"`
	Providers  ProvidersConfig `yaml:"providers"`
	ResultsDir string          `yaml:"results_dir"`
	ArchiveDB  string          `yaml:"archive_db"` // empty disables the run archive
	LogLevel   string          `yaml:"log_level"`
}

// AgentConfig defines the agent identity and loop budget.
type AgentConfig struct {
	Name          string `yaml:"name"`
	Role          string `yaml:"role"`
	Goal          string `yaml:"goal"`
	Backstory     string `yaml:"backstory"`
	PromptType    string `yaml:"prompt_type"`    // react (default) or cot
	PromptPattern string `yaml:"prompt_pattern"` // pattern variant within the type
	MaxIterations int    `yaml:"max_iterations"`
}

// BackendConfig defines a single backend handle: which provider serves the
// model and which response-extraction mechanisms the model supports.
type BackendConfig struct {
	Model                   string `yaml:"model"`
	Provider                string `yaml:"provider"` // ollama, openai, together, anthropic; empty infers from the model name
	SupportsSchema          bool   `yaml:"supports_schema"`
	SupportsFunctionCalling bool   `yaml:"supports_function_calling"`
}

// ProvidersConfig defines provider endpoints. API keys come from the
// environment, never from the config file.
type ProvidersConfig struct {
	OllamaURL     string `yaml:"ollama_url"`
	OpenAIBaseURL string `yaml:"openai_base_url"` // any OpenAI-compatible endpoint (OpenAI, Together, ...)
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Name:          "Refinery",
			Role:          "AI Assistant",
			Goal:          "Assist users effectively",
			Backstory:     "An advanced AI designed to provide helpful insights.",
			PromptType:    "react",
			MaxIterations: 3,
		},
		Generator: BackendConfig{
			Model:    "qwen3:4b",
			Provider: "ollama",
		},
		Critic: BackendConfig{
			Model:    "qwen3:4b",
			Provider: "ollama",
		},
		Providers: ProvidersConfig{
			OllamaURL: "http://localhost:11434",
		},
		ResultsDir: "prompt_results",
	}
}

// Validate checks the loaded configuration for values the loop cannot
// run with.
func (c *Config) Validate() error {
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be > 0 (got %d)", c.Agent.MaxIterations)
	}
	if c.Generator.Model == "" {
		return fmt.Errorf("generator.model is required")
	}
	if c.Critic.Model == "" {
		return fmt.Errorf("critic.model is required")
	}
	if c.ResultsDir == "" {
		return fmt.Errorf("results_dir is required")
	}
	return nil
}
