// Package api provides the HTTP API for chatting with the shared generation
// resource and inspecting stored conversations.
package api

import "net/http"

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8000")
	ListenAddr string

	// MCPHandler, when set, is mounted at /mcp.
	MCPHandler http.Handler
}
