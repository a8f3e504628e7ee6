// Package client is an HTTP client for the chatmem API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/papercomputeco/chatmem/api"
	"github.com/papercomputeco/chatmem/pkg/chat"
	"github.com/papercomputeco/chatmem/pkg/sse"
	"github.com/papercomputeco/chatmem/pkg/storage"
)

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chatmem API returned status %d: %s", e.StatusCode, e.Message)
}

// IsBusy reports whether err is the API's busy rejection. The request can be
// retried.
func IsBusy(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable
}

// StreamError is a failure reported inside an otherwise successful stream.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return e.Message
}

// Client talks to a chatmem API server.
type Client struct {
	target     string
	httpClient *http.Client
	transcript io.Writer
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTranscript copies every raw line of streamed responses to w.
func WithTranscript(w io.Writer) Option {
	return func(c *Client) {
		c.transcript = w
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New returns a Client for the API at target, e.g. "http://localhost:8000".
func New(target string, opts ...Option) *Client {
	c := &Client{
		target: strings.TrimRight(target, "/"),
		httpClient: &http.Client{
			// generation can be slow
			Timeout: 5 * time.Minute,
		},
		transcript: io.Discard,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ping checks that the server is up.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/ping", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// NewChat starts a conversation with message.
func (c *Client) NewChat(ctx context.Context, message string) (*chat.TurnResult, error) {
	var res chat.TurnResult
	if err := c.doJSON(ctx, http.MethodPost, "/new-chat", api.ChatRequest{Message: message}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Chat runs a blocking turn in an existing conversation.
func (c *Client) Chat(ctx context.Context, chatID, message string) (*chat.TurnResult, error) {
	var res chat.TurnResult
	if err := c.doJSON(ctx, http.MethodPost, "/chat", api.ChatRequest{ChatID: chatID, Message: message}, &res); err != nil {
		return nil, err
	}
	res.ConversationID = chatID
	return &res, nil
}

// streamPayload is any data event of /chat-stream.
type streamPayload struct {
	Token         *string              `json:"token"`
	Error         string               `json:"error"`
	MemoriesAdded *int                 `json:"memories_added"`
	MemoryStats   storage.MemoryCounts `json:"memory_stats"`
}

// ChatStream runs a streaming turn, calling onToken for every fragment as it
// arrives. It returns the completion summary, or a *StreamError if the server
// reported a failure mid-stream.
func (c *Client) ChatStream(ctx context.Context, chatID, message string, onToken func(string)) (*chat.StreamDone, error) {
	body, err := json.Marshal(api.ChatRequest{ChatID: chatID, Message: message})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/chat-stream", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var done *chat.StreamDone
	reader := sse.NewTeeReader(resp.Body, c.transcript)
	for {
		ev, err := reader.Next()
		if err != nil {
			return done, fmt.Errorf("reading stream: %w", err)
		}
		if ev == nil || ev.IsDone() {
			break
		}

		var p streamPayload
		if err := json.Unmarshal([]byte(ev.Data), &p); err != nil {
			c.logger.Debug("failed to parse stream event", "data", ev.Data, "error", err)
			continue
		}

		switch {
		case p.Error != "":
			return nil, &StreamError{Message: p.Error}
		case p.Token != nil:
			if onToken != nil {
				onToken(*p.Token)
			}
		case p.MemoriesAdded != nil:
			done = &chat.StreamDone{MemoriesAdded: *p.MemoriesAdded, MemoryStats: p.MemoryStats}
		}
	}

	if done == nil {
		return nil, errors.New("stream ended without a completion summary")
	}
	return done, nil
}

// ListChats lists conversations, most recently active first.
func (c *Client) ListChats(ctx context.Context) ([]*storage.Conversation, error) {
	var res api.ChatsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/chats", nil, &res); err != nil {
		return nil, err
	}
	return res.Chats, nil
}

// Messages returns a conversation's messages in order.
func (c *Client) Messages(ctx context.Context, chatID string) ([]api.MessageView, error) {
	var res api.MessagesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/chat/"+url.PathEscape(chatID), nil, &res); err != nil {
		return nil, err
	}
	return res.Messages, nil
}

// MemoryStats returns a conversation's memory counts.
func (c *Client) MemoryStats(ctx context.Context, chatID string) (storage.MemoryCounts, error) {
	var res api.MemoryStatsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/memory-stats/"+url.PathEscape(chatID), nil, &res); err != nil {
		return storage.MemoryCounts{}, err
	}
	return res.MemoryStats, nil
}

// DeleteChat removes a conversation and its memory.
func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	var res api.SuccessResponse
	if err := c.doJSON(ctx, http.MethodDelete, "/chat/"+url.PathEscape(chatID), nil, &res); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("deleting chat %s was not acknowledged", chatID)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
	}

	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// do sends a request and returns the response if it succeeded. Non-2xx
// responses are turned into *APIError.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.target+path, r)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("sending request", "method", method, "url", req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request to chatmem API: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)

		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var er api.ErrorResponse
		if json.Unmarshal(raw, &er) == nil && er.Error != "" {
			apiErr.Message = er.Error
		}
		return nil, apiErr
	}
	return resp, nil
}

// Target returns the API base URL.
func (c *Client) Target() string {
	return c.target
}
