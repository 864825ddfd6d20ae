package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 1 * time.Second
	DefaultMaxDelay   = 30 * time.Second

	DefaultMaxIterations      = 24
	DefaultToolResultMaxChars = 30000
	DefaultSinkBuffer         = 256

	DefaultBashTimeout     = 30 * time.Second
	DefaultBashGracePeriod = 5 * time.Second

	DefaultSubAgentMaxParallel = 4
	DefaultSubAgentMaxTurns    = 20

	DefaultMaxSessionAge   = 30 * 24 * time.Hour
	DefaultMaxSessionCount = 50
)

// DefaultConfig returns a configuration populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			ActiveProvider: "gemini",
			OllamaBaseURL:  "http://localhost:11434",
			Retry: RetryConfig{
				MaxRetries: DefaultMaxRetries,
				RetryDelay: DefaultRetryDelay,
				MaxDelay:   DefaultMaxDelay,
			},
		},
		Model: ModelConfig{
			Name:            "gemini-3-flash-preview",
			Temperature:     0.2,
			MaxOutputTokens: 8192,
			Effort:          "medium",
		},
		Permission: PermissionConfig{
			Mode: "supervised",
		},
		SubAgent: SubAgentConfig{
			MaxParallel: DefaultSubAgentMaxParallel,
			MaxTurns:    DefaultSubAgentMaxTurns,
		},
		Session: SessionConfig{
			MaxSessionAge:   DefaultMaxSessionAge,
			MaxSessionCount: DefaultMaxSessionCount,
		},
		Context: ContextConfig{
			MaxIterations:      DefaultMaxIterations,
			ToolResultMaxChars: DefaultToolResultMaxChars,
			SinkBuffer:         DefaultSinkBuffer,
		},
		Tools: ToolsConfig{
			BashTimeout:     DefaultBashTimeout,
			BashGracePeriod: DefaultBashGracePeriod,
		},
		Logging: LoggingConfig{
			Level: "warn",
		},
	}
}

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := ConfigPath()
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			// Config file is optional, don't fail if it doesn't exist
			if !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	loadFromEnv(cfg)
	return cfg, nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "krusty", "config.yaml")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".config", "krusty", "config.yaml")
}

// DataDir returns the directory for session storage, creating it if needed.
func DataDir(cfg *Config) (string, error) {
	dir := cfg.Session.DataDir
	if dir == "" {
		if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
			dir = filepath.Join(xdgData, "krusty")
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dir = filepath.Join(homeDir, ".local", "share", "krusty")
		}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// Expand environment variables in the config file
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// loadFromEnv applies environment variable overrides.
func loadFromEnv(cfg *Config) {
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		cfg.API.GeminiKey = apiKey
	}
	if model := os.Getenv("KRUSTY_MODEL"); model != "" {
		cfg.Model.Name = model
	}
	if provider := os.Getenv("KRUSTY_PROVIDER"); provider != "" {
		cfg.API.ActiveProvider = provider
	}
	if baseURL := os.Getenv("OLLAMA_HOST"); baseURL != "" {
		cfg.API.OllamaBaseURL = baseURL
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	switch c.API.ActiveProvider {
	case "gemini", "ollama":
	default:
		return fmt.Errorf("unknown provider: %s", c.API.ActiveProvider)
	}
	if c.SubAgent.MaxParallel < 1 {
		return fmt.Errorf("subagent.max_parallel must be at least 1")
	}
	if c.Context.MaxIterations < 1 {
		return fmt.Errorf("context.max_iterations must be at least 1")
	}
	return nil
}

// Save writes the configuration to the config path.
func (c *Config) Save() error {
	path := ConfigPath()
	if path == "" {
		return fmt.Errorf("cannot determine config path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
