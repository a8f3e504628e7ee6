package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent chatmem configuration stored as
// config.toml in the .chatmem/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	Server      ServerConfig      `toml:"server"`
	Generation  GenerationConfig  `toml:"generation"`
	Context     ContextConfig     `toml:"context"`
	EventStream EventStreamConfig `toml:"eventstream"`
	Client      ClientConfig      `toml:"client"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	// Backend is one of "sqlite", "postgres", "libsql" or "memory".
	Backend     string `toml:"backend,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
	LibSQLURL   string `toml:"libsql_url,omitempty"`
}

// ServerConfig holds API server settings.
type ServerConfig struct {
	Listen string `toml:"listen,omitempty"`

	// LogFile, when set, receives JSON logs in addition to the terminal.
	LogFile string `toml:"log_file,omitempty"`
}

// GenerationConfig selects the generation backend and its sampling defaults.
type GenerationConfig struct {
	Provider    string  `toml:"provider,omitempty"`
	Target      string  `toml:"target,omitempty"`
	Model       string  `toml:"model,omitempty"`
	APIKey      string  `toml:"api_key,omitempty"`
	MaxTokens   uint    `toml:"max_tokens,omitempty"`
	Temperature float64 `toml:"temperature,omitempty"`
	TopP        float64 `toml:"top_p,omitempty"`
}

// ContextConfig bounds the conversation history carried into prompts.
type ContextConfig struct {
	MaxPairs      uint `toml:"max_pairs,omitempty"`
	MaxTokens     uint `toml:"max_tokens,omitempty"`
	EnforceLimits bool `toml:"enforce_limits,omitempty"`
}

// EventStreamConfig configures turn event publication. An empty broker list
// disables publishing.
type EventStreamConfig struct {
	KafkaBrokers string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string `toml:"kafka_topic,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to a running
// chatmem server (e.g. chatmem chat, chatmem chats). Values are full URLs.
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

func floatKey(name string, field func(c *Config) *float64) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatFloat(*field(c), 'g', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = f
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.backend":      stringKey(func(c *Config) *string { return &c.Storage.Backend }),
	"storage.sqlite_path":  stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn": stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),
	"storage.libsql_url":   stringKey(func(c *Config) *string { return &c.Storage.LibSQLURL }),

	"server.listen":   stringKey(func(c *Config) *string { return &c.Server.Listen }),
	"server.log_file": stringKey(func(c *Config) *string { return &c.Server.LogFile }),

	"generation.provider":    stringKey(func(c *Config) *string { return &c.Generation.Provider }),
	"generation.target":      stringKey(func(c *Config) *string { return &c.Generation.Target }),
	"generation.model":       stringKey(func(c *Config) *string { return &c.Generation.Model }),
	"generation.api_key":     stringKey(func(c *Config) *string { return &c.Generation.APIKey }),
	"generation.max_tokens":  uintKey("generation.max_tokens", func(c *Config) *uint { return &c.Generation.MaxTokens }),
	"generation.temperature": floatKey("generation.temperature", func(c *Config) *float64 { return &c.Generation.Temperature }),
	"generation.top_p":       floatKey("generation.top_p", func(c *Config) *float64 { return &c.Generation.TopP }),

	"context.max_pairs":  uintKey("context.max_pairs", func(c *Config) *uint { return &c.Context.MaxPairs }),
	"context.max_tokens": uintKey("context.max_tokens", func(c *Config) *uint { return &c.Context.MaxTokens }),
	"context.enforce_limits": {
		get: func(c *Config) string { return strconv.FormatBool(c.Context.EnforceLimits) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for context.enforce_limits: %w", err)
			}
			c.Context.EnforceLimits = b
			return nil
		},
	},

	"eventstream.kafka_brokers": stringKey(func(c *Config) *string { return &c.EventStream.KafkaBrokers }),
	"eventstream.kafka_topic":   stringKey(func(c *Config) *string { return &c.EventStream.KafkaTopic }),

	"client.api_target": stringKey(func(c *Config) *string { return &c.Client.APITarget }),
}

// orderedKeys lists the config keys in TOML section order.
var orderedKeys = []string{
	"storage.backend",
	"storage.sqlite_path",
	"storage.postgres_dsn",
	"storage.libsql_url",
	"server.listen",
	"server.log_file",
	"generation.provider",
	"generation.target",
	"generation.model",
	"generation.api_key",
	"generation.max_tokens",
	"generation.temperature",
	"generation.top_p",
	"context.max_pairs",
	"context.max_tokens",
	"context.enforce_limits",
	"eventstream.kafka_brokers",
	"eventstream.kafka_topic",
	"client.api_target",
}
