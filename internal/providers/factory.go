package providers

import (
	"fmt"

	"github.com/hkuds/prompthandler/internal/config"
)

// Default models for each provider
const (
	DefaultOpenAIModel     = "gpt-3.5-turbo-0613"
	DefaultOpenRouterModel = "openai/gpt-3.5-turbo-0613"
	DefaultGroqModel       = "llama-3.1-70b-versatile"
	DefaultVLLMModel       = "default"
)

// NewProviderFromConfig creates a Provider based on the configuration.
// It checks providers in priority order: OpenAI > OpenRouter > Groq > VLLM.
func NewProviderFromConfig(cfg *config.Config) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	name, _, _ := cfg.GetActiveProvider()
	if name == "" {
		return nil, fmt.Errorf("no provider configured: set providers.openai.apiKey or %s", config.EnvAPIKey)
	}
	return NewProviderByName(cfg, name)
}

// NewProviderByName creates a specific provider by name from the configuration.
func NewProviderByName(cfg *config.Config, name string) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	switch name {
	case "openai":
		if cfg.Providers.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("openai API key is not configured")
		}
		apiBase := cfg.Providers.OpenAI.APIBase
		if apiBase == "" {
			apiBase = "https://api.openai.com/v1"
		}
		return NewOpenAIProvider("openai", cfg.Providers.OpenAI.APIKey, apiBase, DefaultOpenAIModel), nil

	case "openrouter":
		if cfg.Providers.OpenRouter.APIKey == "" {
			return nil, fmt.Errorf("openrouter API key is not configured")
		}
		apiBase := cfg.Providers.OpenRouter.APIBase
		if apiBase == "" {
			apiBase = "https://openrouter.ai/api/v1"
		}
		return NewOpenAIProvider("openrouter", cfg.Providers.OpenRouter.APIKey, apiBase, DefaultOpenRouterModel), nil

	case "groq":
		if cfg.Providers.Groq.APIKey == "" {
			return nil, fmt.Errorf("groq API key is not configured")
		}
		apiBase := cfg.Providers.Groq.APIBase
		if apiBase == "" {
			apiBase = "https://api.groq.com/openai/v1"
		}
		return NewOpenAIProvider("groq", cfg.Providers.Groq.APIKey, apiBase, DefaultGroqModel), nil

	case "vllm":
		if cfg.Providers.VLLM.APIBase == "" {
			return nil, fmt.Errorf("vllm API base URL is not configured")
		}
		return NewOpenAIProvider("vllm", cfg.Providers.VLLM.APIKey, cfg.Providers.VLLM.APIBase, DefaultVLLMModel), nil

	default:
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
}

// ListAvailableProviders returns a list of provider names that are configured
// and can be used.
func ListAvailableProviders(cfg *config.Config) []string {
	if cfg == nil {
		return nil
	}

	var providers []string

	if cfg.Providers.OpenAI.APIKey != "" {
		providers = append(providers, "openai")
	}
	if cfg.Providers.OpenRouter.APIKey != "" {
		providers = append(providers, "openrouter")
	}
	if cfg.Providers.Groq.APIKey != "" {
		providers = append(providers, "groq")
	}
	if cfg.Providers.VLLM.APIBase != "" {
		providers = append(providers, "vllm")
	}

	return providers
}
