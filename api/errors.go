package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/chatmem/pkg/chat"
	"github.com/papercomputeco/chatmem/pkg/storage"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Client-facing messages for malformed requests.
const (
	msgInvalidJSON   = "Invalid JSON"
	msgEmptyMessage  = "Empty message"
	msgMissingChatID = "No chat_id provided"
)

// statusFor maps a coordinator error to an HTTP status and client message.
func statusFor(err error) (int, string) {
	var notFound storage.NotFoundError
	var genErr *chat.GenerationError

	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return fiber.StatusBadRequest, msgEmptyMessage
	case errors.Is(err, chat.ErrMissingConversation):
		return fiber.StatusBadRequest, msgMissingChatID
	case errors.As(err, &notFound):
		return fiber.StatusNotFound, notFound.Error()
	case chat.Rejected(err):
		return fiber.StatusServiceUnavailable, err.Error()
	case errors.As(err, &genErr):
		return fiber.StatusInternalServerError, genErr.Error()
	default:
		return fiber.StatusInternalServerError, err.Error()
	}
}

func (s *Server) sendError(c *fiber.Ctx, err error) error {
	status, msg := statusFor(err)
	if status >= fiber.StatusInternalServerError && status != fiber.StatusServiceUnavailable {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	} else {
		s.logger.Debug("request rejected", "path", c.Path(), "status", status, "error", err)
	}
	return c.Status(status).JSON(ErrorResponse{Error: msg})
}
