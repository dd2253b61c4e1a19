package llm

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Provider names accepted by the factory.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderTogether  = "together"
	ProviderAnthropic = "anthropic"
)

// togetherBaseURL is the OpenAI-compatible endpoint for Together AI.
const togetherBaseURL = "https://api.together.xyz/v1"

// keyEnvVars maps providers to the environment variable that must hold
// their API key. Ollama is local and needs no credential.
var keyEnvVars = map[string]string{
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderTogether:  "TOGETHER_API_KEY",
	ProviderAnthropic: "ANTHROPIC_API_KEY",
}

// FactorySettings holds the endpoints shared by all backends a factory
// constructs. API keys are read from the environment, never passed in.
type FactorySettings struct {
	// OllamaURL is the base URL for the local Ollama server.
	// Empty uses the Ollama default.
	OllamaURL string

	// OpenAIBaseURL overrides the endpoint for the "openai" provider,
	// for self-hosted OpenAI-compatible servers. Empty uses api.openai.com.
	OpenAIBaseURL string

	Logger *slog.Logger
}

// Factory constructs Backend handles, validating provider and
// credentials at construction time and reusing one client per provider
// so backends share connection pools.
type Factory struct {
	settings FactorySettings
	clients  map[string]Client // provider name → client
}

// NewFactory creates a backend factory.
func NewFactory(settings FactorySettings) *Factory {
	if settings.Logger == nil {
		settings.Logger = slog.Default()
	}
	return &Factory{
		settings: settings,
		clients:  make(map[string]Client),
	}
}

// openaiModelPrefixes are the model families served by api.openai.com.
var openaiModelPrefixes = []string{"gpt-", "chatgpt-", "o1", "o3", "o4", "text-"}

// InferProvider routes a model name to its provider, for configurations
// that name only the model. Claude models go to Anthropic, OpenAI
// families to OpenAI, org/model identifiers to Together, and anything
// else to the local Ollama server.
func InferProvider(model string) string {
	switch {
	case strings.HasPrefix(model, "claude-"):
		return ProviderAnthropic
	case hasAnyPrefix(model, openaiModelPrefixes):
		return ProviderOpenAI
	case strings.Contains(model, "/"):
		return ProviderTogether
	default:
		return ProviderOllama
	}
}

// validateModel rejects model names outside the provider's published
// families, so a misrouted backend fails at construction instead of on
// the first request. Ollama serves whatever is pulled locally, so any
// tag passes.
func validateModel(provider, model string) error {
	switch provider {
	case ProviderOpenAI:
		if !hasAnyPrefix(model, openaiModelPrefixes) {
			return fmt.Errorf("unknown model %q for provider %q", model, provider)
		}
	case ProviderAnthropic:
		if !strings.HasPrefix(model, "claude-") {
			return fmt.Errorf("unknown model %q for provider %q", model, provider)
		}
	case ProviderTogether:
		if !strings.Contains(model, "/") {
			return fmt.Errorf("unknown model %q for provider %q (expected an org/model identifier)", model, provider)
		}
	}
	return nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// Backend builds a handle for model on provider with the given
// capability record. An empty provider is inferred from the model
// name. Returns an error for unknown providers, an empty or misrouted
// model name, or a missing API key environment variable.
func (f *Factory) Backend(provider, model string, caps Capabilities) (*Backend, error) {
	if model == "" {
		return nil, fmt.Errorf("model name is required for provider %q", provider)
	}
	if provider == "" {
		provider = InferProvider(model)
	}
	if err := validateModel(provider, model); err != nil {
		return nil, err
	}

	client, err := f.clientFor(provider)
	if err != nil {
		return nil, err
	}

	return &Backend{
		Provider: provider,
		Model:    model,
		Client:   client,
		Caps:     caps,
	}, nil
}

// clientFor returns the cached client for a provider, constructing it
// on first use.
func (f *Factory) clientFor(provider string) (Client, error) {
	if client, ok := f.clients[provider]; ok {
		return client, nil
	}

	var client Client
	switch provider {
	case ProviderOllama:
		client = NewOllamaClient(f.settings.OllamaURL)

	case ProviderOpenAI:
		key, err := requireKey(provider)
		if err != nil {
			return nil, err
		}
		client = NewOpenAIClient(f.settings.OpenAIBaseURL, key, f.settings.Logger)

	case ProviderTogether:
		key, err := requireKey(provider)
		if err != nil {
			return nil, err
		}
		client = NewOpenAIClient(togetherBaseURL, key, f.settings.Logger)

	case ProviderAnthropic:
		key, err := requireKey(provider)
		if err != nil {
			return nil, err
		}
		client = NewAnthropicClient(key, f.settings.Logger)

	default:
		return nil, fmt.Errorf("unsupported provider %q (supported: ollama, openai, together, anthropic)", provider)
	}

	f.clients[provider] = client
	return client, nil
}

// requireKey reads the provider's API key from the environment.
func requireKey(provider string) (string, error) {
	envVar := keyEnvVars[provider]
	key := os.Getenv(envVar)
	if key == "" {
		return "", fmt.Errorf("provider %q requires the %s environment variable", provider, envVar)
	}
	return key, nil
}
