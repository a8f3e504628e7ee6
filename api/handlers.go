package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/chatmem/pkg/chat"
	"github.com/papercomputeco/chatmem/pkg/storage"
)

// ChatRequest is the body of /new-chat, /chat and /chat-stream.
type ChatRequest struct {
	Message string `json:"message"`
	ChatID  string `json:"chat_id,omitempty"`
}

// ChatsResponse lists conversations, most recently active first.
type ChatsResponse struct {
	Chats []*storage.Conversation `json:"chats"`
}

// MessageView is a stored message as returned by GET /chat/:id.
type MessageView struct {
	Role      storage.Role `json:"role"`
	Content   string       `json:"content"`
	CreatedAt time.Time    `json:"created_at"`
}

// MessagesResponse holds a conversation's messages in order.
type MessagesResponse struct {
	Messages []MessageView `json:"messages"`
}

// MemoryStatsResponse holds a conversation's memory counts.
type MemoryStatsResponse struct {
	MemoryStats storage.MemoryCounts `json:"memory_stats"`
}

// SuccessResponse acknowledges a deletion.
type SuccessResponse struct {
	Success bool `json:"success"`
}

func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.SendString("pong")
}

func (s *Server) handleListChats(c *fiber.Ctx) error {
	convs := s.chat.Conversations(c.UserContext())
	if convs == nil {
		convs = []*storage.Conversation{}
	}
	return c.JSON(ChatsResponse{Chats: convs})
}

func (s *Server) handleGetChat(c *fiber.Ctx) error {
	msgs := s.chat.Messages(c.UserContext(), c.Params("id"))

	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, MessageView{
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	return c.JSON(MessagesResponse{Messages: views})
}

func (s *Server) handleDeleteChat(c *fiber.Ctx) error {
	if err := s.chat.DeleteConversation(c.UserContext(), c.Params("id")); err != nil {
		return s.sendError(c, err)
	}
	return c.JSON(SuccessResponse{Success: true})
}

func (s *Server) handleMemoryStats(c *fiber.Ctx) error {
	return c.JSON(MemoryStatsResponse{MemoryStats: s.chat.MemoryCounts(c.UserContext(), c.Params("id"))})
}

func (s *Server) handleNewChat(c *fiber.Ctx) error {
	req, ok := s.parseRequest(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: msgInvalidJSON})
	}

	res, err := s.chat.Generate(context.Background(), chat.TurnRequest{
		Message:   req.Message,
		FirstTurn: true,
	})
	if err != nil {
		return s.sendError(c, err)
	}
	return c.JSON(res)
}

func (s *Server) handleChat(c *fiber.Ctx) error {
	req, ok := s.parseRequest(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: msgInvalidJSON})
	}

	res, err := s.chat.Generate(context.Background(), chat.TurnRequest{
		ConversationID: req.ChatID,
		Message:        req.Message,
	})
	if err != nil {
		return s.sendError(c, err)
	}
	return c.JSON(res)
}

func (s *Server) parseRequest(c *fiber.Ctx) (ChatRequest, bool) {
	var req ChatRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		s.logger.Debug("invalid request body", "path", c.Path(), "error", err)
		return req, false
	}
	return req, true
}
