package api

import (
	"log/slog"
	"net"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/papercomputeco/chatmem/pkg/chat"
)

// Server is the chatmem API server.
type Server struct {
	config Config
	chat   *chat.Coordinator
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server that runs turns through coord.
func NewServer(config Config, coord *chat.Coordinator, logger *slog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Content-Type",
	}))

	s := &Server{
		config: config,
		chat:   coord,
		logger: logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/chats", s.handleListChats)
	app.Get("/chat/:id", s.handleGetChat)
	app.Delete("/chat/:id", s.handleDeleteChat)
	app.Get("/memory-stats/:id", s.handleMemoryStats)
	app.Post("/new-chat", s.handleNewChat)
	app.Post("/chat", s.handleChat)
	app.Post("/chat-stream", s.handleChatStream)

	if config.MCPHandler != nil {
		app.All("/mcp", adaptor.HTTPHandler(config.MCPHandler))
	}

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// RunWithListener starts the API server using the provided listener.
func (s *Server) RunWithListener(listener net.Listener) error {
	s.logger.Info("starting API server", "listen", listener.Addr().String())
	return s.app.Listener(listener)
}

// Shutdown gracefully shuts down the API server. Open streams are allowed to
// finish.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
