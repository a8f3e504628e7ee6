// Package backends selects a generation.Generator implementation by name.
package backends

import (
	"fmt"

	"github.com/papercomputeco/chatmem/pkg/generation"
	"github.com/papercomputeco/chatmem/pkg/generation/llamacpp"
	"github.com/papercomputeco/chatmem/pkg/generation/ollama"
	"github.com/papercomputeco/chatmem/pkg/generation/openai"
)

// Supported backend names
const (
	LlamaCpp = "llamacpp"
	Ollama   = "ollama"
	OpenAI   = "openai"
)

// Supported returns the list of all supported backend names.
func Supported() []string {
	return []string{LlamaCpp, Ollama, OpenAI}
}

// New creates the generator named by cfg.Provider.
func New(cfg generation.Config) (generation.Generator, error) {
	switch cfg.Provider {
	case LlamaCpp, "":
		return llamacpp.New(cfg.Target), nil
	case Ollama:
		return ollama.New(cfg.Target, cfg.Model), nil
	case OpenAI:
		return openai.New(cfg.Target, cfg.Model, cfg.APIKey)
	default:
		return nil, fmt.Errorf("unknown generation provider: %q (supported: %v)", cfg.Provider, Supported())
	}
}
