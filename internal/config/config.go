// Package config holds all reflect configuration from .reflect/config.yaml.
// This is the single source of truth for global defaults; per-block overrides
// live as outline node properties and are merged by the resolver package.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all reflect configuration.
type Config struct {
	// LLM endpoint configuration
	LLM LLMConfig `yaml:"llm"`

	// Request defaults, overridable per block via reflect-* properties
	Request RequestConfig `yaml:"request"`

	// Outline host configuration
	Outline OutlineConfig `yaml:"outline"`

	// Rendering behavior of the response handler
	Render RenderConfig `yaml:"render"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the model endpoint.
type LLMConfig struct {
	BaseURL    string `yaml:"base_url"`
	PathSuffix string `yaml:"path_suffix"` // appended to base_url for chat requests
	APIKey     string `yaml:"api_key"`
	TimeoutSec int    `yaml:"timeout_sec"`
	MaxRetries int    `yaml:"max_retries"`
}

// RequestConfig holds the process-wide default request parameters.
// Every field always resolves to a value; per-block properties only
// override, they never remove.
type RequestConfig struct {
	Model            string  `yaml:"model"`
	Temperature      float64 `yaml:"temperature"`
	TopP             float64 `yaml:"top_p"`
	MaxTokens        int     `yaml:"max_tokens"` // 0 = let the endpoint decide
	Stream           bool    `yaml:"stream"`
	UseContext       bool    `yaml:"use_context"`
	MaxContextTokens int     `yaml:"max_context_tokens"`
}

// OutlineConfig configures the outline host backend.
type OutlineConfig struct {
	DatabasePath string `yaml:"database_path"`
	DefaultPage  string `yaml:"default_page"`
}

// RenderConfig configures incremental response rendering.
type RenderConfig struct {
	// DebounceMs is the minimum delay between outline writes while streaming.
	DebounceMs int `yaml:"debounce_ms"`
}

// LoggingConfig configures the categorized debug logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			BaseURL:    "http://localhost:11434",
			PathSuffix: "/v1/chat/completions",
			TimeoutSec: 120,
			MaxRetries: 3,
		},
		Request: RequestConfig{
			Model:            "llama3",
			Temperature:      0.7,
			TopP:             0.9,
			MaxTokens:        0,
			Stream:           true,
			UseContext:       true,
			MaxContextTokens: 2048,
		},
		Outline: OutlineConfig{
			DatabasePath: ".reflect/outline.db",
			DefaultPage:  "scratch",
		},
		Render: RenderConfig{
			DebounceMs: 150,
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults
// when the file is absent. Environment variables win over the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides lets environment variables win over file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("REFLECT_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("REFLECT_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("REFLECT_MODEL"); v != "" {
		c.Request.Model = v
	}
	if v := os.Getenv("REFLECT_DB"); v != "" {
		c.Outline.DatabasePath = v
	}
	if v := os.Getenv("REFLECT_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.DebugMode = b
		}
	}
}

// Validate checks ranges on the request defaults. Invalid per-block
// overrides are skipped by the resolver, but the global defaults must
// themselves be sane since they are the last fallback.
func (c *Config) Validate() error {
	if c.Request.Temperature < 0 || c.Request.Temperature > 2 {
		return fmt.Errorf("request.temperature %v out of range [0,2]", c.Request.Temperature)
	}
	if c.Request.TopP < 0 || c.Request.TopP > 1 {
		return fmt.Errorf("request.top_p %v out of range [0,1]", c.Request.TopP)
	}
	if c.Request.MaxTokens < 0 {
		return fmt.Errorf("request.max_tokens must not be negative")
	}
	if c.Request.MaxContextTokens <= 0 {
		return fmt.Errorf("request.max_context_tokens must be positive")
	}
	if c.LLM.TimeoutSec <= 0 {
		return fmt.Errorf("llm.timeout_sec must be positive")
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries must not be negative")
	}
	if c.Render.DebounceMs < 0 {
		return fmt.Errorf("render.debounce_ms must not be negative")
	}
	return nil
}

// Timeout returns the request timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSec) * time.Second
}

// Debounce returns the render debounce interval as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Render.DebounceMs) * time.Millisecond
}

// Endpoint returns the full chat completions URL.
func (c *Config) Endpoint() string {
	return c.LLM.BaseURL + c.LLM.PathSuffix
}

// DefaultPath returns the conventional config location under a workspace.
func DefaultPath(workspace string) string {
	return filepath.Join(workspace, ".reflect", "config.yaml")
}
