package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the parley configuration
type Config struct {
	Engine  EngineConfig  `json:"engine"`
	REPL    REPLConfig    `json:"repl"`
	Metrics MetricsConfig `json:"metrics"`
	Logging LoggingConfig `json:"logging"`
}

// EngineConfig contains inference engine configuration
type EngineConfig struct {
	Type                  string `json:"type"`                             // "process", "daemon" or "server"
	Binary                string `json:"binary,omitempty"`                 // for process engines
	Endpoint              string `json:"endpoint,omitempty"`               // for daemon/server engines
	EnableLog             bool   `json:"enable_log"`                       // backend log verbosity
	GPULayers             int    `json:"gpu_layers"`                       // layers to offload
	ContextSize           int    `json:"context_size"`                     // token window size
	ConnectTimeoutSeconds int    `json:"connect_timeout_seconds,omitempty"` // daemon/server dial timeout
	MaxRetries            int    `json:"max_retries,omitempty"`            // server initial-request retries
}

// REPLConfig contains interactive loop settings
type REPLConfig struct {
	HistoryFile  string `json:"history_file,omitempty"`
	TemplateFile string `json:"template_file,omitempty"`
	KeepLogs     bool   `json:"keep_logs"`
}

// MetricsConfig contains the optional prometheus listener settings
type MetricsConfig struct {
	Addr string `json:"addr,omitempty"` // empty disables the listener
}

// LoggingConfig contains debug logging settings
type LoggingConfig struct {
	Debug bool `json:"debug"`
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment overrides, then defaults
	config.applyEnv()
	config.SetDefaults()

	// Validate
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadDefault attempts to load .parley.json from the current directory or
// home; when neither exists the built-in defaults are used, so the chat
// works with flags alone.
func LoadDefault() (*Config, error) {
	// Try current directory
	if _, err := os.Stat(".parley.json"); err == nil {
		return Load(".parley.json")
	}

	// Try home directory
	home, err := os.UserHomeDir()
	if err == nil {
		homePath := filepath.Join(home, ".parley.json")
		if _, err := os.Stat(homePath); err == nil {
			return Load(homePath)
		}
	}

	return Default()
}

// Default returns the built-in configuration with environment overrides
// applied.
func Default() (*Config, error) {
	var config Config
	config.applyEnv()
	config.SetDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyEnv applies PARLEY_* environment overrides (a .env file, when
// present, has been loaded into the environment by the CLI at startup).
func (c *Config) applyEnv() {
	if v := os.Getenv("PARLEY_ENGINE"); v != "" {
		c.Engine.Type = v
	}
	if v := os.Getenv("PARLEY_ENDPOINT"); v != "" {
		c.Engine.Endpoint = v
	}
	if v := os.Getenv("PARLEY_BINARY"); v != "" {
		c.Engine.Binary = v
	}
	if os.Getenv("PARLEY_DEBUG") == "true" || os.Getenv("DEBUG") == "true" {
		c.Logging.Debug = true
	}
}

// SetDefaults fills in default values for fields left unset. Load calls it
// automatically; callers that mutate the config afterwards (flag overrides)
// should call it again before Validate.
func (c *Config) SetDefaults() {
	// Engine defaults
	if c.Engine.Type == "" {
		c.Engine.Type = "process"
	}
	if c.Engine.ContextSize == 0 {
		c.Engine.ContextSize = 512
	}
	if c.Engine.Binary == "" {
		c.Engine.Binary = "llama-cli"
	}
	if c.Engine.Endpoint == "" {
		switch c.Engine.Type {
		case "daemon":
			c.Engine.Endpoint = "ws://localhost:8765/generate"
		case "server":
			c.Engine.Endpoint = "http://localhost:8080"
		}
	}
	if c.Engine.ConnectTimeoutSeconds == 0 {
		c.Engine.ConnectTimeoutSeconds = 10
	}
	if c.Engine.MaxRetries == 0 {
		c.Engine.MaxRetries = 3
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Engine.Type {
	case "process", "daemon", "server":
	default:
		return fmt.Errorf("invalid engine type: %s (must be 'process', 'daemon' or 'server')", c.Engine.Type)
	}

	if c.Engine.ContextSize <= 0 {
		return fmt.Errorf("context_size must be positive: %d", c.Engine.ContextSize)
	}
	if c.Engine.GPULayers < 0 {
		return fmt.Errorf("gpu_layers must not be negative: %d", c.Engine.GPULayers)
	}
	if c.Engine.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative: %d", c.Engine.MaxRetries)
	}
	if c.Engine.ConnectTimeoutSeconds <= 0 {
		return fmt.Errorf("connect_timeout_seconds must be positive: %d", c.Engine.ConnectTimeoutSeconds)
	}

	if c.Engine.Type == "process" && c.Engine.Binary == "" {
		return fmt.Errorf("binary is required for process engines")
	}
	if (c.Engine.Type == "daemon" || c.Engine.Type == "server") && c.Engine.Endpoint == "" {
		return fmt.Errorf("endpoint is required for %s engines", c.Engine.Type)
	}

	return nil
}
