package config

const (
	defaultStorageBackend = "sqlite"
	defaultServerListen   = ":8000"

	defaultGenerationProvider = "llamacpp"
	defaultGenerationTarget   = "http://localhost:8080"
	defaultMaxTokens          = 512
	defaultTemperature        = 0.7
	defaultTopP               = 0.95

	defaultContextMaxPairs  = 10
	defaultContextMaxTokens = 2048

	defaultKafkaTopic = "chatmem.turns"

	defaultClientAPITarget = "http://localhost:8000"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Backend: defaultStorageBackend,
		},
		Server: ServerConfig{
			Listen: defaultServerListen,
		},
		Generation: GenerationConfig{
			Provider:    defaultGenerationProvider,
			Target:      defaultGenerationTarget,
			MaxTokens:   defaultMaxTokens,
			Temperature: defaultTemperature,
			TopP:        defaultTopP,
		},
		Context: ContextConfig{
			MaxPairs:  defaultContextMaxPairs,
			MaxTokens: defaultContextMaxTokens,
		},
		EventStream: EventStreamConfig{
			KafkaTopic: defaultKafkaTopic,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
	}
}
