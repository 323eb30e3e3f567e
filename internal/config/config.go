// Package config loads and validates the runtime configuration file.
package config

import (
	"encoding/json"
	"fmt"

	"github.com/stingersec/stinger/internal/logger"
	"github.com/stingersec/stinger/pkg/run"
)

// Config is the root configuration.
type Config struct {
	// AgentsDir holds one JSON definition file per agent.
	AgentsDir string `json:"agents_dir" mapstructure:"agents_dir"`

	// DataDir anchors session archives, memory, and logs.
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// WorkspacePath is the working directory handed to shell tools.
	WorkspacePath string `json:"workspace_path" mapstructure:"workspace_path"`

	Session SessionConfig `json:"session" mapstructure:"session"`
	Memory  MemoryConfig  `json:"memory" mapstructure:"memory"`
	Server  ServerConfig  `json:"server" mapstructure:"server"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
	Browser BrowserConfig `json:"browser" mapstructure:"browser"`
}

// SessionConfig carries the per-session defaults. Values are frozen into an
// immutable run.Config when a session is created.
type SessionConfig struct {
	MaxInteractions int     `json:"max_interactions" mapstructure:"max_interactions"`
	PriceCeiling    float64 `json:"price_ceiling" mapstructure:"price_ceiling"`
	RetryAttempts   int     `json:"retry_attempts" mapstructure:"retry_attempts"`
	Model           string  `json:"model" mapstructure:"model"`

	// QueueMode is "fifo" or "replace".
	QueueMode string `json:"queue_mode" mapstructure:"queue_mode"`
}

// MemoryConfig controls the cross-session recall store.
type MemoryConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// Path of the sqlite database; empty defaults under DataDir.
	Path string `json:"path" mapstructure:"path"`

	// Embedder is "openai" or "local".
	Embedder       string `json:"embedder" mapstructure:"embedder"`
	EmbeddingModel string `json:"embedding_model" mapstructure:"embedding_model"`
}

// ServerConfig configures the optional HTTP surface: the prometheus metrics
// endpoint and the websocket event stream.
type ServerConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Host    string `json:"host" mapstructure:"host"`
	Port    int    `json:"port" mapstructure:"port"`
}

// LoggingConfig mirrors the logger package configuration.
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"`
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// BrowserConfig configures the web_snapshot tool.
type BrowserConfig struct {
	Disabled bool   `json:"disabled" mapstructure:"disabled"`
	CDPURL   string `json:"cdp_url" mapstructure:"cdp_url"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			MaxInteractions: 25,
			PriceCeiling:    0,
			RetryAttempts:   3,
			QueueMode:       "fifo",
		},
		Memory: MemoryConfig{
			Enabled:        true,
			Embedder:       "local",
			EmbeddingModel: "text-embedding-3-small",
		},
		Server: ServerConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8420,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.Session.MaxInteractions < 0 {
		return fmt.Errorf("session.max_interactions must be non-negative, got %d", c.Session.MaxInteractions)
	}
	if c.Session.PriceCeiling < 0 {
		return fmt.Errorf("session.price_ceiling must be non-negative, got %f", c.Session.PriceCeiling)
	}
	if c.Session.RetryAttempts < 1 {
		return fmt.Errorf("session.retry_attempts must be at least 1, got %d", c.Session.RetryAttempts)
	}
	switch c.Session.QueueMode {
	case "", "fifo", "replace":
	default:
		return fmt.Errorf("session.queue_mode must be fifo or replace, got %q", c.Session.QueueMode)
	}
	switch c.Memory.Embedder {
	case "", "local", "openai":
	default:
		return fmt.Errorf("memory.embedder must be local or openai, got %q", c.Memory.Embedder)
	}
	if c.Server.Enabled && (c.Server.Port < 1 || c.Server.Port > 65535) {
		return fmt.Errorf("server.port must be a valid port, got %d", c.Server.Port)
	}
	switch c.Logging.Level {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not a zerolog level", c.Logging.Level)
	}
	return nil
}

// RunConfig freezes the session defaults into a run.Config.
func (c *Config) RunConfig() run.Config {
	mode := run.QueueFIFO
	if c.Session.QueueMode == "replace" {
		mode = run.QueueReplace
	}
	return run.Config{
		MaxInteractions: c.Session.MaxInteractions,
		PriceCeiling:    c.Session.PriceCeiling,
		RetryAttempts:   c.Session.RetryAttempts,
		Model:           c.Session.Model,
		QueueMode:       mode,
	}
}

// LoggerConfig converts the logging section for the logger package.
func (c *Config) LoggerConfig(console, pretty bool) logger.Config {
	return logger.Config{
		Level:      c.Logging.Level,
		File:       c.Logging.File,
		Console:    console,
		Pretty:     pretty,
		Redaction:  c.Logging.Redaction,
		MaxSizeMB:  c.Logging.MaxSize,
		MaxAgeDays: c.Logging.MaxAge,
		Compress:   c.Logging.Compress,
	}
}

// String renders the config as indented JSON.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
