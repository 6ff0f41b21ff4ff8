// Package config loads provider and runtime settings from a YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/iksnae/chat-session/internal"
	"github.com/iksnae/chat-session/internal/transport"
)

// Config holds everything needed to build provider settings. APIKey is only
// ever read from the environment; the file never stores it.
type Config struct {
	APIKey string `yaml:"-" env:"CHAT_SESSION_API_KEY"`

	Endpoint     string  `yaml:"endpoint" env:"CHAT_SESSION_ENDPOINT"`
	Model        string  `yaml:"model" env:"CHAT_SESSION_MODEL"`
	Temperature  float64 `yaml:"temperature" env:"CHAT_SESSION_TEMPERATURE"`
	MaxTokens    int     `yaml:"max_tokens" env:"CHAT_SESSION_MAX_TOKENS"`
	WebSearch    bool    `yaml:"web_search" env:"CHAT_SESSION_WEB_SEARCH"`
	SystemPrompt string  `yaml:"system_prompt" env:"CHAT_SESSION_SYSTEM_PROMPT"`

	RequestTimeout    time.Duration `yaml:"request_timeout" env:"CHAT_SESSION_REQUEST_TIMEOUT"`
	StreamIdleTimeout time.Duration `yaml:"stream_idle_timeout" env:"CHAT_SESSION_STREAM_IDLE_TIMEOUT"`
	LogLevel          string        `yaml:"log_level" env:"CHAT_SESSION_LOG_LEVEL"`
}

// Keys lists the settable keys in display order
var Keys = []string{
	"endpoint",
	"model",
	"temperature",
	"max_tokens",
	"web_search",
	"system_prompt",
	"request_timeout",
	"stream_idle_timeout",
	"log_level",
}

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		Endpoint:          transport.DefaultEndpoint,
		Model:             "openai/gpt-4o-mini",
		Temperature:       0.7,
		MaxTokens:         internal.DefaultMaxTokens,
		RequestTimeout:    60 * time.Second,
		StreamIdleTimeout: 90 * time.Second,
		LogLevel:          "warn",
	}
}

// Load layers defaults, the file at path (if it exists) and the environment
func Load(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile layers the file at path over the defaults, ignoring the environment.
// A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		internal.LogDebug("No config file at %s, using defaults", path)
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &internal.ConfigurationError{Field: "config", Reason: fmt.Sprintf("invalid YAML in %s: %v", path, err)}
	}
	return cfg, nil
}

// Validate rejects values that cannot be clamped into something usable
func (c *Config) Validate() error {
	if c.RequestTimeout < 0 {
		return &internal.ConfigurationError{Field: "request_timeout", Reason: "must not be negative"}
	}
	if c.StreamIdleTimeout < 0 {
		return &internal.ConfigurationError{Field: "stream_idle_timeout", Reason: "must not be negative"}
	}
	if c.LogLevel != "" {
		if _, err := internal.ParseLogLevel(c.LogLevel); err != nil {
			return &internal.ConfigurationError{Field: "log_level", Reason: err.Error()}
		}
	}
	return nil
}

// Save writes the file-backed fields to path
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Settings converts the config into provider settings. The key is passed in
// because it may come from the secret store rather than the environment.
func (c *Config) Settings(apiKey string) internal.ProviderSettings {
	return internal.ProviderSettings{
		APIKey:       apiKey,
		Endpoint:     c.Endpoint,
		Model:        c.Model,
		Temperature:  c.Temperature,
		MaxTokens:    c.MaxTokens,
		WebSearch:    c.WebSearch,
		SystemPrompt: c.SystemPrompt,
	}.Clamped()
}

// Get returns the string form of key
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "endpoint":
		return c.Endpoint, nil
	case "model":
		return c.Model, nil
	case "temperature":
		return strconv.FormatFloat(c.Temperature, 'g', -1, 64), nil
	case "max_tokens":
		return strconv.Itoa(c.MaxTokens), nil
	case "web_search":
		return strconv.FormatBool(c.WebSearch), nil
	case "system_prompt":
		return c.SystemPrompt, nil
	case "request_timeout":
		return c.RequestTimeout.String(), nil
	case "stream_idle_timeout":
		return c.StreamIdleTimeout.String(), nil
	case "log_level":
		return c.LogLevel, nil
	}
	return "", unknownKey(key)
}

// Set parses value into key
func (c *Config) Set(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case "endpoint":
		c.Endpoint = value
	case "model":
		c.Model = value
	case "temperature":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || math.IsNaN(f) {
			return &internal.ConfigurationError{Field: key, Reason: "must be a number"}
		}
		c.Temperature = f
	case "max_tokens":
		n, err := strconv.Atoi(value)
		if err != nil {
			return &internal.ConfigurationError{Field: key, Reason: "must be an integer"}
		}
		c.MaxTokens = n
	case "web_search":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return &internal.ConfigurationError{Field: key, Reason: "must be true or false"}
		}
		c.WebSearch = b
	case "system_prompt":
		c.SystemPrompt = value
	case "request_timeout", "stream_idle_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return &internal.ConfigurationError{Field: key, Reason: "must be a duration like 30s"}
		}
		if key == "request_timeout" {
			c.RequestTimeout = d
		} else {
			c.StreamIdleTimeout = d
		}
	case "log_level":
		c.LogLevel = value
	default:
		return unknownKey(key)
	}
	return c.Validate()
}

func unknownKey(key string) error {
	return &internal.ConfigurationError{Field: key, Reason: "unknown key (valid: " + strings.Join(Keys, ", ") + ")"}
}
