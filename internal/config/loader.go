package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigDir is the default config directory name.
	DefaultConfigDir = ".prompthandler"
	// DefaultConfigFile is the default config file name.
	DefaultConfigFile = "config.json"

	// EnvAPIKey fills providers.openai.apiKey when the file leaves it empty.
	EnvAPIKey = "OPENAI_API_KEY"
	// EnvModel overrides conversation.model.
	EnvModel = "PROMPTHANDLER_MODEL"
)

// GetConfigDir returns the default config directory path (~/.prompthandler).
func GetConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", DefaultConfigDir)
	}
	return filepath.Join(home, DefaultConfigDir)
}

// GetConfigPath returns the default config file path (~/.prompthandler/config.json).
func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), DefaultConfigFile)
}

// isYAML reports whether path should be decoded as YAML.
func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadConfig loads configuration from the specified path.
// If path is empty, it uses the default config path (~/.prompthandler/config.json).
// If the config file doesn't exist, it returns the default configuration.
// Environment overrides are applied in both cases.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = GetConfigPath()
	}

	path = expandPath(path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		ApplyEnv(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// Start with defaults and unmarshal over them
	cfg := DefaultConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		// Comments and trailing commas are allowed in JSON config files
		err = json.Unmarshal(jsonc.ToJSON(data), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks settings that cannot be corrected by defaults.
func (c *Config) Validate() error {
	switch c.Sessions.Backend {
	case "", SessionBackendFile, SessionBackendSQLite:
	default:
		return fmt.Errorf("unknown sessions backend %q (want %q or %q)",
			c.Sessions.Backend, SessionBackendFile, SessionBackendSQLite)
	}
	return nil
}

// ApplyEnv applies environment variable overrides to cfg.
func ApplyEnv(cfg *Config) {
	if key := os.Getenv(EnvAPIKey); key != "" && cfg.Providers.OpenAI.APIKey == "" {
		cfg.Providers.OpenAI.APIKey = key
	}
	if model := os.Getenv(EnvModel); model != "" {
		cfg.Conversation.Model = model
	}
}

// SaveConfig saves the configuration to the specified path.
// If path is empty, it uses the default config path (~/.prompthandler/config.json).
func SaveConfig(cfg *Config, path string) error {
	if path == "" {
		path = GetConfigPath()
	}

	path = expandPath(path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}

	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Owner-only permissions: the file holds API keys
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

// Exists checks if a config file exists at the given path.
// If path is empty, checks the default config path.
func Exists(path string) bool {
	if path == "" {
		path = GetConfigPath()
	}
	path = expandPath(path)
	_, err := os.Stat(path)
	return err == nil
}

// EnsureWorkspaceDir ensures the workspace directory exists.
func EnsureWorkspaceDir(cfg *Config) error {
	workspace := cfg.WorkspacePath()
	if err := os.MkdirAll(workspace, 0755); err != nil {
		return fmt.Errorf("failed to create workspace directory %s: %w", workspace, err)
	}
	return nil
}
