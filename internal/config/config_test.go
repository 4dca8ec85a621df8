package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Conversation.Model != "gpt-3.5-turbo-0613" {
		t.Errorf("default model = %q, want %q", cfg.Conversation.Model, "gpt-3.5-turbo-0613")
	}
	if cfg.Conversation.MaxTokens != 4096 {
		t.Errorf("default maxTokens = %d, want 4096", cfg.Conversation.MaxTokens)
	}
	if cfg.Conversation.Temperature != 0 {
		t.Errorf("default temperature = %f, want 0", cfg.Conversation.Temperature)
	}
	if cfg.Conversation.Calibration != "summarize" {
		t.Errorf("default calibration = %q, want summarize", cfg.Conversation.Calibration)
	}
	if cfg.Conversation.MaxSummaryPasses != 3 {
		t.Errorf("default maxSummaryPasses = %d, want 3", cfg.Conversation.MaxSummaryPasses)
	}
	if cfg.Channels.Telegram.Enabled {
		t.Error("telegram should be disabled by default")
	}
}

func TestWorkspacePath(t *testing.T) {
	cfg := DefaultConfig()
	path := cfg.WorkspacePath()

	if path == "" {
		t.Error("WorkspacePath() should not be empty")
	}
	if path == "~/.prompthandler/workspace" {
		t.Error("WorkspacePath() should expand tilde")
	}
}

func TestWorkspacePathEmpty(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workspace = ""
	path := cfg.WorkspacePath()

	if path == "" {
		t.Error("WorkspacePath() should use default when empty")
	}
}

func TestGetActiveProvider(t *testing.T) {
	tests := []struct {
		name     string
		cfg      *Config
		wantName string
	}{
		{
			name:     "no providers configured",
			cfg:      DefaultConfig(),
			wantName: "",
		},
		{
			name: "openrouter configured",
			cfg: func() *Config {
				c := DefaultConfig()
				c.Providers.OpenRouter.APIKey = "sk-test"
				return c
			}(),
			wantName: "openrouter",
		},
		{
			name: "openai configured",
			cfg: func() *Config {
				c := DefaultConfig()
				c.Providers.OpenAI.APIKey = "sk-test"
				return c
			}(),
			wantName: "openai",
		},
		{
			name: "groq configured",
			cfg: func() *Config {
				c := DefaultConfig()
				c.Providers.Groq.APIKey = "gsk-test"
				return c
			}(),
			wantName: "groq",
		},
		{
			name: "vllm configured",
			cfg: func() *Config {
				c := DefaultConfig()
				c.Providers.VLLM.APIBase = "http://localhost:8000/v1"
				return c
			}(),
			wantName: "vllm",
		},
		{
			name: "openai takes precedence",
			cfg: func() *Config {
				c := DefaultConfig()
				c.Providers.OpenAI.APIKey = "sk-test"
				c.Providers.Groq.APIKey = "gsk-test"
				return c
			}(),
			wantName: "openai",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, _, _ := tt.cfg.GetActiveProvider()
			if name != tt.wantName {
				t.Errorf("GetActiveProvider() name = %q, want %q", name, tt.wantName)
			}
		})
	}
}

func TestCompletionModelFor(t *testing.T) {
	tests := []struct {
		name     string
		override string
		provider string
		want     string
	}{
		{"openai uses the conversation model", "", "openai", "gpt-3.5-turbo-0613"},
		{"openrouter uses its default", "", "openrouter", ""},
		{"groq uses its default", "", "groq", ""},
		{"vllm uses its default", "", "vllm", ""},
		{"override wins for openai", "gpt-3.5-turbo-16k", "openai", "gpt-3.5-turbo-16k"},
		{"override wins for groq", "llama-3.3-70b-versatile", "groq", "llama-3.3-70b-versatile"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Conversation.CompletionModel = tt.override
			if got := cfg.CompletionModelFor(tt.provider); got != tt.want {
				t.Errorf("CompletionModelFor(%q) = %q, want %q", tt.provider, got, tt.want)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	// Empty path
	if got := expandPath(""); got != "" {
		t.Errorf("expandPath('') = %q, want empty", got)
	}

	// Tilde expansion
	result := expandPath("~/test")
	if result == "~/test" {
		t.Error("expandPath should expand tilde")
	}
	if result == "" {
		t.Error("expandPath should return non-empty path")
	}

	// Just tilde
	result = expandPath("~")
	if result == "~" {
		t.Error("expandPath('~') should expand to home dir")
	}

	// Absolute path
	result = expandPath("/tmp/test")
	if result != "/tmp/test" {
		t.Errorf("expandPath('/tmp/test') = %q, want /tmp/test", result)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	t.Setenv(EnvModel, "")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Conversation.MaxTokens != 4096 {
		t.Errorf("maxTokens = %d, want default 4096", cfg.Conversation.MaxTokens)
	}
}

func TestLoadConfigJSONOverDefaults(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	t.Setenv(EnvModel, "")

	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"conversation": {"maxTokens": 1000, "calibration": "truncate"}}`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Conversation.MaxTokens != 1000 {
		t.Errorf("maxTokens = %d, want 1000", cfg.Conversation.MaxTokens)
	}
	if cfg.Conversation.Calibration != "truncate" {
		t.Errorf("calibration = %q, want truncate", cfg.Conversation.Calibration)
	}
	// Untouched fields keep their defaults
	if cfg.Conversation.Model != "gpt-3.5-turbo-0613" {
		t.Errorf("model = %q, want default", cfg.Conversation.Model)
	}
	if cfg.Providers.OpenAI.APIBase != "https://api.openai.com/v1" {
		t.Errorf("openai apiBase = %q, want default", cfg.Providers.OpenAI.APIBase)
	}
}

func TestLoadConfigYAML(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	t.Setenv(EnvModel, "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "conversation:\n  model: gpt-3.5-turbo-0301\n  maxTokens: 512\nproviders:\n  groq:\n    apiKey: gsk-test\n"
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Conversation.Model != "gpt-3.5-turbo-0301" {
		t.Errorf("model = %q, want gpt-3.5-turbo-0301", cfg.Conversation.Model)
	}
	if cfg.Conversation.MaxTokens != 512 {
		t.Errorf("maxTokens = %d, want 512", cfg.Conversation.MaxTokens)
	}
	if name, _, _ := cfg.GetActiveProvider(); name != "groq" {
		t.Errorf("active provider = %q, want groq", name)
	}
}

func TestLoadConfigJSONWithComments(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	t.Setenv(EnvModel, "")

	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
	// budget for head + body
	"conversation": {"maxTokens": 2048,},
	/* persisted in one database */
	"sessions": {"backend": "sqlite", "path": "/tmp/ph.db"},
}`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Conversation.MaxTokens != 2048 {
		t.Errorf("maxTokens = %d, want 2048", cfg.Conversation.MaxTokens)
	}
	if cfg.Sessions.Backend != SessionBackendSQLite {
		t.Errorf("sessions backend = %q, want sqlite", cfg.Sessions.Backend)
	}
	if got := cfg.SessionsDBPath(); got != "/tmp/ph.db" {
		t.Errorf("SessionsDBPath() = %q, want /tmp/ph.db", got)
	}
}

func TestLoadConfigUnknownSessionBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("sessions:\n  backend: redis\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("LoadConfig() should reject an unknown sessions backend")
	}
}

func TestSessionsDBPathDefault(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workspace = "/tmp/ph-workspace"
	if got, want := cfg.SessionsDBPath(), filepath.Join("/tmp/ph-workspace", "sessions.db"); got != want {
		t.Errorf("SessionsDBPath() = %q, want %q", got, want)
	}
	if cfg.Sessions.Backend != SessionBackendFile {
		t.Errorf("default sessions backend = %q, want file", cfg.Sessions.Backend)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("LoadConfig() should fail on malformed file")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvAPIKey, "sk-env")
	t.Setenv(EnvModel, "gpt-3.5-turbo-0301")

	cfg := DefaultConfig()
	ApplyEnv(cfg)
	if cfg.Providers.OpenAI.APIKey != "sk-env" {
		t.Errorf("openai apiKey = %q, want sk-env", cfg.Providers.OpenAI.APIKey)
	}
	if cfg.Conversation.Model != "gpt-3.5-turbo-0301" {
		t.Errorf("model = %q, want env override", cfg.Conversation.Model)
	}

	// A key from the file wins over the environment
	cfg = DefaultConfig()
	cfg.Providers.OpenAI.APIKey = "sk-file"
	ApplyEnv(cfg)
	if cfg.Providers.OpenAI.APIKey != "sk-file" {
		t.Errorf("openai apiKey = %q, want sk-file", cfg.Providers.OpenAI.APIKey)
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	t.Setenv(EnvModel, "")

	for _, name := range []string{"config.json", "config.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			cfg := DefaultConfig()
			cfg.Conversation.MaxTokens = 2048
			cfg.Channels.Telegram.AllowFrom = []string{"42"}

			if err := SaveConfig(cfg, path); err != nil {
				t.Fatalf("SaveConfig() error = %v", err)
			}
			if !Exists(path) {
				t.Fatal("Exists() = false after SaveConfig")
			}

			info, err := os.Stat(path)
			if err != nil {
				t.Fatal(err)
			}
			if perm := info.Mode().Perm(); perm != 0600 {
				t.Errorf("config mode = %o, want 600", perm)
			}

			loaded, err := LoadConfig(path)
			if err != nil {
				t.Fatalf("LoadConfig() error = %v", err)
			}
			if loaded.Conversation.MaxTokens != 2048 {
				t.Errorf("maxTokens = %d, want 2048", loaded.Conversation.MaxTokens)
			}
			if len(loaded.Channels.Telegram.AllowFrom) != 1 || loaded.Channels.Telegram.AllowFrom[0] != "42" {
				t.Errorf("allowFrom = %v, want [42]", loaded.Channels.Telegram.AllowFrom)
			}
		})
	}
}
