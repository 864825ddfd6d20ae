package config

import "time"

// Config represents the main application configuration.
type Config struct {
	API        APIConfig        `yaml:"api"`
	Model      ModelConfig      `yaml:"model"`
	Permission PermissionConfig `yaml:"permission"`
	SubAgent   SubAgentConfig   `yaml:"subagent"`
	Session    SessionConfig    `yaml:"session"`
	Context    ContextConfig    `yaml:"context"`
	Tools      ToolsConfig      `yaml:"tools"`
	Logging    LoggingConfig    `yaml:"logging"`

	// Runtime version information
	Version string `yaml:"-"`
}

// APIConfig holds provider API settings.
type APIConfig struct {
	GeminiKey string `yaml:"gemini_key,omitempty"`

	// Ollama server URL (default: http://localhost:11434)
	OllamaBaseURL string `yaml:"ollama_base_url,omitempty"`

	// Active provider: gemini or ollama (default: gemini)
	ActiveProvider string `yaml:"active_provider"`

	// Retry configuration for API calls
	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig configures retries for transient provider errors.
// The exact numbers are operational tuning, not a correctness contract.
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

// ModelConfig holds model selection and generation settings.
type ModelConfig struct {
	Name            string  `yaml:"name"`
	Temperature     float32 `yaml:"temperature"`
	MaxOutputTokens int32   `yaml:"max_output_tokens"`

	// Effort controls the thinking budget: off, low, medium, high.
	Effort string `yaml:"effort"`
}

// PermissionConfig holds permission gating settings.
type PermissionConfig struct {
	// Mode is the default permission mode for new sessions:
	// "supervised" (approval required for mutating tools) or "autonomous".
	Mode string `yaml:"mode"`
}

// SubAgentConfig bounds sub-agent fan-out.
type SubAgentConfig struct {
	// MaxParallel is the maximum number of concurrently live child agents.
	MaxParallel int `yaml:"max_parallel"`

	// MaxTurns caps each child agent's loop iterations.
	MaxTurns int `yaml:"max_turns"`
}

// SessionConfig configures session persistence.
type SessionConfig struct {
	// DataDir overrides the default session storage directory.
	DataDir string `yaml:"data_dir,omitempty"`

	// MaxSessionAge is the maximum age before a session is pruned.
	MaxSessionAge time.Duration `yaml:"max_session_age"`

	// MaxSessionCount is the maximum number of sessions to keep.
	MaxSessionCount int `yaml:"max_session_count"`
}

// ContextConfig configures history size management.
type ContextConfig struct {
	// MaxIterations caps provider round-trips within one user turn.
	MaxIterations int `yaml:"max_iterations"`

	// ToolResultMaxChars truncates tool output fed back to the model.
	ToolResultMaxChars int `yaml:"tool_result_max_chars"`

	// SinkBuffer is the render event buffer size before old deltas drop.
	SinkBuffer int `yaml:"sink_buffer"`
}

// ToolsConfig configures tool execution.
type ToolsConfig struct {
	// BashTimeout is the per-command timeout for the bash tool.
	BashTimeout time.Duration `yaml:"bash_timeout"`

	// BashGracePeriod is the SIGTERM-to-SIGKILL grace on cancellation.
	BashGracePeriod time.Duration `yaml:"bash_grace_period"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level string `yaml:"level"`

	// File overrides the directory the log file is written to.
	// Empty means the data directory.
	File string `yaml:"file,omitempty"`
}
