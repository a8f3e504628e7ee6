package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/chatmem/pkg/dotdir"
)

// EnvPrefix prefixes every environment variable read by chatmem.
const EnvPrefix = "CHATMEM"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the CHATMEM_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (CHATMEM_SERVER_LISTEN, CHATMEM_GENERATION_API_KEY, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper materializes the layered configuration into a Config.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Storage: StorageConfig{
			Backend:     v.GetString("storage.backend"),
			SQLitePath:  v.GetString("storage.sqlite_path"),
			PostgresDSN: v.GetString("storage.postgres_dsn"),
			LibSQLURL:   v.GetString("storage.libsql_url"),
		},
		Server: ServerConfig{
			Listen:  v.GetString("server.listen"),
			LogFile: v.GetString("server.log_file"),
		},
		Generation: GenerationConfig{
			Provider:    v.GetString("generation.provider"),
			Target:      v.GetString("generation.target"),
			Model:       v.GetString("generation.model"),
			APIKey:      v.GetString("generation.api_key"),
			MaxTokens:   v.GetUint("generation.max_tokens"),
			Temperature: v.GetFloat64("generation.temperature"),
			TopP:        v.GetFloat64("generation.top_p"),
		},
		Context: ContextConfig{
			MaxPairs:      v.GetUint("context.max_pairs"),
			MaxTokens:     v.GetUint("context.max_tokens"),
			EnforceLimits: v.GetBool("context.enforce_limits"),
		},
		EventStream: EventStreamConfig{
			KafkaBrokers: v.GetString("eventstream.kafka_brokers"),
			KafkaTopic:   v.GetString("eventstream.kafka_topic"),
		},
		Client: ClientConfig{
			APITarget: v.GetString("client.api_target"),
		},
	}
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. Every key gets a default, even an empty one, so
// AutomaticEnv can resolve it.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Storage
	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)
	v.SetDefault("storage.libsql_url", d.Storage.LibSQLURL)

	// Server
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.log_file", d.Server.LogFile)

	// Generation
	v.SetDefault("generation.provider", d.Generation.Provider)
	v.SetDefault("generation.target", d.Generation.Target)
	v.SetDefault("generation.model", d.Generation.Model)
	v.SetDefault("generation.api_key", d.Generation.APIKey)
	v.SetDefault("generation.max_tokens", d.Generation.MaxTokens)
	v.SetDefault("generation.temperature", d.Generation.Temperature)
	v.SetDefault("generation.top_p", d.Generation.TopP)

	// Context
	v.SetDefault("context.max_pairs", d.Context.MaxPairs)
	v.SetDefault("context.max_tokens", d.Context.MaxTokens)
	v.SetDefault("context.enforce_limits", d.Context.EnforceLimits)

	// Event stream
	v.SetDefault("eventstream.kafka_brokers", d.EventStream.KafkaBrokers)
	v.SetDefault("eventstream.kafka_topic", d.EventStream.KafkaTopic)

	// Client
	v.SetDefault("client.api_target", d.Client.APITarget)
}
