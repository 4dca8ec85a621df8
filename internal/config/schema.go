package config

import (
	"os"
	"path/filepath"
)

// Config represents the root configuration structure for prompthandler.
type Config struct {
	Workspace    string             `json:"workspace" yaml:"workspace"`
	Conversation ConversationConfig `json:"conversation" yaml:"conversation"`
	Providers    ProvidersConfig    `json:"providers" yaml:"providers"`
	Channels     ChannelsConfig     `json:"channels" yaml:"channels"`
	Sessions     SessionsConfig     `json:"sessions" yaml:"sessions"`
}

// Session storage backends.
const (
	SessionBackendFile   = "file"
	SessionBackendSQLite = "sqlite"
)

// SessionsConfig selects where conversation snapshots are persisted.
type SessionsConfig struct {
	Backend string `json:"backend" yaml:"backend"`
	// Path is the SQLite database file; it defaults to <workspace>/sessions.db.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// ConversationConfig holds the model, budget and calibration settings
// every conversation is created with.
type ConversationConfig struct {
	// Model selects the token accounting. It is also the model requested
	// from OpenAI unless CompletionModel is set.
	Model       string  `json:"model" yaml:"model"`
	MaxTokens   int     `json:"maxTokens" yaml:"maxTokens"` // token budget for head + body
	Temperature float64 `json:"temperature" yaml:"temperature"`
	// Calibration is "truncate" or "summarize" ("summary" is accepted too).
	Calibration         string `json:"calibration" yaml:"calibration"`
	SystemPrompt        string `json:"systemPrompt,omitempty" yaml:"systemPrompt,omitempty"`
	SummaryPrompt       string `json:"summaryPrompt,omitempty" yaml:"summaryPrompt,omitempty"`
	MaxSummaryPasses    int    `json:"maxSummaryPasses" yaml:"maxSummaryPasses"`
	CompletionMaxTokens int    `json:"completionMaxTokens,omitempty" yaml:"completionMaxTokens,omitempty"`
	// CompletionModel is the model id sent to the provider. Empty means
	// Model for OpenAI and the provider's default model otherwise.
	CompletionModel string `json:"completionModel,omitempty" yaml:"completionModel,omitempty"`
}

// ProvidersConfig holds the OpenAI-compatible endpoints a conversation can use.
type ProvidersConfig struct {
	OpenAI     ProviderConfig `json:"openai" yaml:"openai"`
	OpenRouter ProviderConfig `json:"openrouter" yaml:"openrouter"`
	Groq       ProviderConfig `json:"groq" yaml:"groq"`
	VLLM       ProviderConfig `json:"vllm" yaml:"vllm"`
}

// ProviderConfig represents a standard LLM provider configuration.
type ProviderConfig struct {
	APIKey  string `json:"apiKey" yaml:"apiKey"`
	APIBase string `json:"apiBase,omitempty" yaml:"apiBase,omitempty"`
}

// ChannelsConfig holds chat channel configurations.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
}

// TelegramConfig represents Telegram bot configuration.
type TelegramConfig struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	Token     string   `json:"token" yaml:"token"`
	AllowFrom []string `json:"allowFrom" yaml:"allowFrom"`
}

// DefaultConfig returns a new Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Workspace: "~/.prompthandler/workspace",
		Conversation: ConversationConfig{
			Model:            "gpt-3.5-turbo-0613",
			MaxTokens:        4096,
			Temperature:      0,
			Calibration:      "summarize",
			SummaryPrompt:    "Summarize this conversation",
			MaxSummaryPasses: 3,
		},
		Providers: ProvidersConfig{
			OpenAI: ProviderConfig{
				APIBase: "https://api.openai.com/v1",
			},
			OpenRouter: ProviderConfig{
				APIBase: "https://openrouter.ai/api/v1",
			},
			Groq: ProviderConfig{
				APIBase: "https://api.groq.com/openai/v1",
			},
			VLLM: ProviderConfig{
				APIBase: "",
			},
		},
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{
				Enabled:   false,
				AllowFrom: []string{},
			},
		},
		Sessions: SessionsConfig{
			Backend: SessionBackendFile,
		},
	}
}

// WorkspacePath returns the absolute path to the workspace directory,
// expanding ~ to the user's home directory.
func (c *Config) WorkspacePath() string {
	workspace := c.Workspace
	if workspace == "" {
		workspace = "~/.prompthandler/workspace"
	}
	return expandPath(workspace)
}

// SessionsDBPath returns the absolute path of the SQLite session database.
func (c *Config) SessionsDBPath() string {
	if c.Sessions.Path != "" {
		return expandPath(c.Sessions.Path)
	}
	return filepath.Join(c.WorkspacePath(), "sessions.db")
}

// CompletionModelFor returns the model id to request from provider. An
// empty result lets the provider use its default model.
func (c *Config) CompletionModelFor(provider string) string {
	if c.Conversation.CompletionModel != "" {
		return c.Conversation.CompletionModel
	}
	if provider == "openai" {
		return c.Conversation.Model
	}
	return ""
}

// GetActiveProvider returns the first configured provider's name, API key, and API base URL.
// It checks providers in order: OpenAI, OpenRouter, Groq, VLLM.
// Returns empty strings if no provider is configured.
func (c *Config) GetActiveProvider() (name string, apiKey string, apiBase string) {
	if c.Providers.OpenAI.APIKey != "" {
		return "openai", c.Providers.OpenAI.APIKey, c.Providers.OpenAI.APIBase
	}

	if c.Providers.OpenRouter.APIKey != "" {
		return "openrouter", c.Providers.OpenRouter.APIKey, c.Providers.OpenRouter.APIBase
	}

	if c.Providers.Groq.APIKey != "" {
		return "groq", c.Providers.Groq.APIKey, c.Providers.Groq.APIBase
	}

	// VLLM may work without an API key for local deployments
	if c.Providers.VLLM.APIBase != "" {
		return "vllm", c.Providers.VLLM.APIKey, c.Providers.VLLM.APIBase
	}

	return "", "", ""
}

// expandPath expands ~ to the user's home directory and resolves the path.
func expandPath(path string) string {
	if path == "" {
		return path
	}

	// Expand ~ to home directory
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if len(path) == 1 {
			return home
		}
		// Handle ~/path and ~path cases
		if path[1] == '/' || path[1] == filepath.Separator {
			path = filepath.Join(home, path[2:])
		} else {
			path = filepath.Join(home, path[1:])
		}
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}

	return absPath
}
