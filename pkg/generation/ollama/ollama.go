// Package ollama implements generation.Generator against Ollama's generate
// API in raw mode, so the prompt is sent exactly as assembled.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/papercomputeco/chatmem/pkg/generation"
)

const (
	// DefaultBaseURL is the default Ollama API URL.
	DefaultBaseURL = "http://localhost:11434"

	// DefaultModel is used when no model is configured.
	DefaultModel = "llama3.2"
)

// Generator wraps Ollama's /api/generate endpoint.
type Generator struct {
	baseURL    string
	model      string
	httpClient *http.Client
	closed     atomic.Bool
}

// Ensure Generator implements generation.Generator and generation.Loader
var (
	_ generation.Generator = (*Generator)(nil)
	_ generation.Loader    = (*Generator)(nil)
)

type generateOptions struct {
	NumPredict  int      `json:"num_predict"`
	Temperature float64  `json:"temperature"`
	TopP        float64  `json:"top_p"`
	Stop        []string `json:"stop,omitempty"`
}

// generateRequest is the body of POST /api/generate.
type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Raw     bool            `json:"raw"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

// generateResponse is the blocking response and each NDJSON stream line.
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// New returns a Generator for model on the Ollama server at baseURL.
func New(baseURL, model string) *Generator {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}

	return &Generator{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{},
	}
}

// Load checks that the model is available on the server.
func (g *Generator) Load(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{"model": g.model})
	if err != nil {
		return err
	}

	resp, err := g.do(ctx, "/api/show", body)
	if err != nil {
		return fmt.Errorf("checking model %s: %w", g.model, err)
	}
	resp.Body.Close()
	return nil
}

// Complete returns the whole completion for prompt.
func (g *Generator) Complete(ctx context.Context, prompt string, p generation.Params) (string, error) {
	resp, err := g.generate(ctx, prompt, p, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if out.Error != "" {
		return "", errors.New(out.Error)
	}
	return out.Response, nil
}

// Stream yields fragments from Ollama's newline-delimited JSON stream.
func (g *Generator) Stream(ctx context.Context, prompt string, p generation.Params) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		resp, err := g.generate(ctx, prompt, p, true)
		if err != nil {
			yield("", err)
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			var chunk generateResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				yield("", fmt.Errorf("decoding stream chunk: %w", err))
				return
			}
			if chunk.Error != "" {
				yield("", errors.New(chunk.Error))
				return
			}
			if chunk.Response != "" && !yield(chunk.Response, nil) {
				return
			}
			if chunk.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", fmt.Errorf("reading stream: %w", err))
		}
	}
}

// Close marks the generator closed.
func (g *Generator) Close() error {
	g.closed.Store(true)
	g.httpClient.CloseIdleConnections()
	return nil
}

func (g *Generator) generate(ctx context.Context, prompt string, p generation.Params, stream bool) (*http.Response, error) {
	if g.closed.Load() {
		return nil, generation.ErrNotLoaded
	}

	body, err := json.Marshal(generateRequest{
		Model:  g.model,
		Prompt: prompt,
		Raw:    true,
		Stream: stream,
		Options: generateOptions{
			NumPredict:  p.MaxTokens,
			Temperature: p.Temperature,
			TopP:        p.TopP,
			Stop:        p.Stop,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	return g.do(ctx, "/api/generate", body)
}

func (g *Generator) do(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	return resp, nil
}
