// Package mcp provides an MCP (Model Context Protocol) server exposing the
// chatmem memory layer as tools.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/chatmem/pkg/storage"
	"github.com/papercomputeco/chatmem/pkg/utils"
)

// Memory is the read side of the chat coordinator used by the tools.
type Memory interface {
	// Recall returns the memory lines that would be injected for message.
	Recall(ctx context.Context, conversationID, message string) []string

	// MemoryCounts returns the stored memory counts of a conversation.
	MemoryCounts(ctx context.Context, conversationID string) storage.MemoryCounts

	// Conversations lists conversations, most recently active first.
	Conversations(ctx context.Context) []*storage.Conversation
}

type Config struct {
	// Memory answers the tool calls.
	Memory Memory

	// Noop for empty MCP server
	Noop bool

	// Logger is the configured slog logger
	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the memory tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "chatmem",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if !c.Noop {
		if c.Memory == nil {
			return nil, errors.New("memory is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        memoryRecallToolName,
			Description: memoryRecallDescription,
		}, s.handleMemoryRecall)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        memoryStatsToolName,
			Description: memoryStatsDescription,
		}, s.handleMemoryStats)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        listConversationsToolName,
			Description: listConversationsDescription,
		}, s.handleListConversations)
	}

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}
