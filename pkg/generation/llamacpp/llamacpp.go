// Package llamacpp implements generation.Generator against the native
// completion API of a llama.cpp server.
package llamacpp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/papercomputeco/chatmem/pkg/generation"
	"github.com/papercomputeco/chatmem/pkg/sse"
)

// DefaultBaseURL is the address llama-server listens on by default.
const DefaultBaseURL = "http://localhost:8080"

// Generator talks to a llama.cpp server.
type Generator struct {
	baseURL    string
	httpClient *http.Client
	closed     atomic.Bool
}

// Ensure Generator implements generation.Generator and generation.Loader
var (
	_ generation.Generator = (*Generator)(nil)
	_ generation.Loader    = (*Generator)(nil)
)

// completionRequest is the body of POST /completion.
type completionRequest struct {
	Prompt      string   `json:"prompt"`
	NPredict    int      `json:"n_predict"`
	Temperature float64  `json:"temperature"`
	TopP        float64  `json:"top_p"`
	Stop        []string `json:"stop,omitempty"`
	Stream      bool     `json:"stream"`
	CachePrompt bool     `json:"cache_prompt"`
}

// completionResponse is both the blocking response and each streamed chunk.
type completionResponse struct {
	Content string `json:"content"`
	Stop    bool   `json:"stop"`
}

// New returns a Generator for the server at baseURL.
func New(baseURL string) *Generator {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Generator{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		// No client timeout: a completion may legitimately run for minutes.
		httpClient: &http.Client{},
	}
}

// Load polls /health until the server reports the model loaded or ctx ends.
func (g *Generator) Load(ctx context.Context) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		err := g.health(ctx)
		if err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for llama.cpp server at %s: %w", g.baseURL, err)
		case <-ticker.C:
		}
	}
}

func (g *Generator) health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health returned status %d", resp.StatusCode)
	}
	return nil
}

// Complete returns the whole completion for prompt.
func (g *Generator) Complete(ctx context.Context, prompt string, p generation.Params) (string, error) {
	resp, err := g.post(ctx, prompt, p, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding completion: %w", err)
	}
	return out.Content, nil
}

// Stream yields completion fragments parsed from the server's SSE stream.
func (g *Generator) Stream(ctx context.Context, prompt string, p generation.Params) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		resp, err := g.post(ctx, prompt, p, true)
		if err != nil {
			yield("", err)
			return
		}
		defer resp.Body.Close()

		reader := sse.NewReader(resp.Body)
		for {
			ev, err := reader.Next()
			if err != nil {
				yield("", fmt.Errorf("reading completion stream: %w", err))
				return
			}
			if ev == nil || ev.IsDone() {
				return
			}

			var chunk completionResponse
			if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
				yield("", fmt.Errorf("decoding completion chunk: %w", err))
				return
			}
			if chunk.Content != "" && !yield(chunk.Content, nil) {
				return
			}
			if chunk.Stop {
				return
			}
		}
	}
}

// Close marks the generator closed. The server itself is not owned here.
func (g *Generator) Close() error {
	g.closed.Store(true)
	g.httpClient.CloseIdleConnections()
	return nil
}

func (g *Generator) post(ctx context.Context, prompt string, p generation.Params, stream bool) (*http.Response, error) {
	if g.closed.Load() {
		return nil, generation.ErrNotLoaded
	}

	body, err := json.Marshal(completionRequest{
		Prompt:      prompt,
		NPredict:    p.MaxTokens,
		Temperature: p.Temperature,
		TopP:        p.TopP,
		Stop:        p.Stop,
		Stream:      stream,
		CachePrompt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/completion", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("llama.cpp returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	return resp, nil
}
