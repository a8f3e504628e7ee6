// Package openai implements generation.Generator on the legacy Completions
// API of any OpenAI-compatible server (vLLM, llama.cpp, LM Studio, ...).
// The raw prompt is sent as-is; no chat template is applied server side.
package openai

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync/atomic"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/papercomputeco/chatmem/pkg/generation"
)

// DefaultBaseURL is the OpenAI API base URL.
const DefaultBaseURL = "https://api.openai.com/v1"

// Generator wraps an openai-go client.
type Generator struct {
	client *openai.Client
	model  string
	closed atomic.Bool
}

// Ensure Generator implements generation.Generator and generation.Loader
var (
	_ generation.Generator = (*Generator)(nil)
	_ generation.Loader    = (*Generator)(nil)
)

// New returns a Generator for model at baseURL. apiKey may be empty for local
// servers that don't check it.
func New(baseURL, model, apiKey string) (*Generator, error) {
	if model == "" {
		return nil, errors.New("openai generator requires a model")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if apiKey == "" {
		apiKey = "unused"
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(strings.TrimSuffix(baseURL, "/")+"/"),
	)

	return &Generator{
		client: &client,
		model:  model,
	}, nil
}

// Load checks that the server knows the model.
func (g *Generator) Load(ctx context.Context) error {
	if _, err := g.client.Models.Get(ctx, g.model); err != nil {
		return fmt.Errorf("checking model %s: %w", g.model, err)
	}
	return nil
}

// Complete returns the whole completion for prompt.
func (g *Generator) Complete(ctx context.Context, prompt string, p generation.Params) (string, error) {
	if g.closed.Load() {
		return "", generation.ErrNotLoaded
	}

	completion, err := g.client.Completions.New(ctx, g.params(prompt, p))
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}
	return completion.Choices[0].Text, nil
}

// Stream yields fragments from the streaming Completions endpoint.
func (g *Generator) Stream(ctx context.Context, prompt string, p generation.Params) iter.Seq2[string, error] {
	if g.closed.Load() {
		return generation.Fail(generation.ErrNotLoaded)
	}

	return func(yield func(string, error) bool) {
		stream := g.client.Completions.NewStreaming(ctx, g.params(prompt, p))
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 || chunk.Choices[0].Text == "" {
				continue
			}
			if !yield(chunk.Choices[0].Text, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield("", fmt.Errorf("completion stream: %w", err))
		}
	}
}

// Close marks the generator closed.
func (g *Generator) Close() error {
	g.closed.Store(true)
	return nil
}

func (g *Generator) params(prompt string, p generation.Params) openai.CompletionNewParams {
	params := openai.CompletionNewParams{
		Model:  openai.CompletionNewParamsModel(g.model),
		Prompt: openai.CompletionNewParamsPromptUnion{OfString: openai.String(prompt)},
	}
	if p.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(p.MaxTokens))
	}
	params.Temperature = openai.Float(p.Temperature)
	if p.TopP > 0 {
		params.TopP = openai.Float(p.TopP)
	}
	if len(p.Stop) > 0 {
		params.Stop = openai.CompletionNewParamsStopUnion{OfStringArray: p.Stop}
	}
	return params
}
