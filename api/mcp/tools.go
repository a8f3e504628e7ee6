package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	memoryRecallToolName    = "memory_recall"
	memoryRecallDescription = "Recall what chatmem remembers about the user in a conversation. Given a conversation id and a message, returns the memory lines (facts, preferences, topics, recent experiences) that would be added to the prompt for that message."

	memoryStatsToolName    = "memory_stats"
	memoryStatsDescription = "Count the facts, experiences and topics stored for a conversation."

	listConversationsToolName    = "list_conversations"
	listConversationsDescription = "List chatmem conversations, most recently active first."
)

// MemoryRecallInput represents the input arguments for the memory_recall tool.
type MemoryRecallInput struct {
	ConversationID string `json:"conversation_id" jsonschema:"the conversation to recall memory from"`
	Message        string `json:"message" jsonschema:"the user message memory is recalled for"`
}

// MemoryRecallOutput represents the structured output of a memory recall.
type MemoryRecallOutput struct {
	Lines []string `json:"lines"`
}

// MemoryStatsInput represents the input arguments for the memory_stats tool.
type MemoryStatsInput struct {
	ConversationID string `json:"conversation_id" jsonschema:"the conversation to count memory for"`
}

// MemoryStatsOutput is the memory held for a conversation.
type MemoryStatsOutput struct {
	Facts       int `json:"facts"`
	Experiences int `json:"experiences"`
	Topics      int `json:"topics"`
}

// Conversation is a conversation summary with RFC 3339 timestamps.
type Conversation struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// ListConversationsInput takes no arguments.
type ListConversationsInput struct{}

// ListConversationsOutput lists conversations.
type ListConversationsOutput struct {
	Conversations []Conversation `json:"conversations"`
	Count         int            `json:"count"`
}

func (s *Server) handleMemoryRecall(ctx context.Context, _ *mcp.CallToolRequest, input MemoryRecallInput) (*mcp.CallToolResult, MemoryRecallOutput, error) {
	if input.ConversationID == "" {
		return errorResult("conversation_id is required"), MemoryRecallOutput{Lines: []string{}}, nil
	}

	s.config.Logger.Debug("MCP memory recall request",
		"conversation_id", input.ConversationID,
	)

	lines := s.config.Memory.Recall(ctx, input.ConversationID, input.Message)
	if lines == nil {
		lines = []string{}
	}

	output := MemoryRecallOutput{Lines: lines}
	return textResult(output), output, nil
}

func (s *Server) handleMemoryStats(ctx context.Context, _ *mcp.CallToolRequest, input MemoryStatsInput) (*mcp.CallToolResult, MemoryStatsOutput, error) {
	if input.ConversationID == "" {
		return errorResult("conversation_id is required"), MemoryStatsOutput{}, nil
	}

	counts := s.config.Memory.MemoryCounts(ctx, input.ConversationID)
	output := MemoryStatsOutput{
		Facts:       counts.Facts,
		Experiences: counts.Experiences,
		Topics:      counts.Topics,
	}
	return textResult(output), output, nil
}

func (s *Server) handleListConversations(ctx context.Context, _ *mcp.CallToolRequest, _ ListConversationsInput) (*mcp.CallToolResult, ListConversationsOutput, error) {
	convs := s.config.Memory.Conversations(ctx)

	output := ListConversationsOutput{Conversations: make([]Conversation, 0, len(convs))}
	for _, c := range convs {
		output.Conversations = append(output.Conversations, Conversation{
			ID:        c.ID,
			Title:     c.Title,
			CreatedAt: c.CreatedAt.Format(time.RFC3339),
			UpdatedAt: c.UpdatedAt.Format(time.RFC3339),
		})
	}
	output.Count = len(output.Conversations)
	return textResult(output), output, nil
}

func textResult(v any) *mcp.CallToolResult {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to serialize results: %v", err))
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
	}
}
