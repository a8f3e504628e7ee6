package api

import (
	"context"
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/chatmem/pkg/chat"
	"github.com/papercomputeco/chatmem/pkg/sse"
)

// TokenEvent carries one generated fragment of a streamed reply.
type TokenEvent struct {
	Token string `json:"token"`
}

// handleChatStream admits the turn before any bytes are written so that
// rejections are plain JSON errors. Once admitted, the reply is framed as
// SSE: one TokenEvent per fragment, the chat.StreamDone summary, then the
// [DONE] marker.
func (s *Server) handleChatStream(c *fiber.Ctx) error {
	req, ok := s.parseRequest(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: msgInvalidJSON})
	}

	// fasthttp recycles its RequestCtx once the handler returns, while the
	// stream keeps running in its own goroutine.
	stream, err := s.chat.BeginStream(context.Background(), req.ChatID, req.Message)
	if err != nil {
		return s.sendError(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	// pw.Write blocks until fasthttp consumes the chunk, so every token is
	// flushed to the client as it is produced. A client that goes away
	// closes the reader and the next write fails.
	pr, pw := io.Pipe()
	go s.runStream(stream, pw)
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

func (s *Server) runStream(stream *chat.Stream, pw *io.PipeWriter) {
	defer pw.Close()

	sink := &sseSink{w: sse.NewWriter(pw)}
	if _, err := stream.Run(sink); err != nil {
		_, msg := statusFor(err)
		s.logger.Error("streaming turn failed",
			"conversation_id", stream.ConversationID(),
			"error", err,
		)
		if err := sink.write(ErrorResponse{Error: msg}); err != nil {
			return
		}
	}

	if sink.failed {
		return
	}
	if err := sink.w.WriteDone(); err != nil {
		s.logger.Debug("failed to write stream terminator", "error", err)
	}
}

// sseSink writes a streaming turn as SSE data events. It is used from a
// single goroutine. After the first failed write it refuses further writes.
type sseSink struct {
	w      *sse.Writer
	failed bool
}

func (s *sseSink) SendToken(token string) error {
	return s.write(TokenEvent{Token: token})
}

func (s *sseSink) SendDone(done chat.StreamDone) error {
	return s.write(done)
}

func (s *sseSink) write(v any) error {
	if s.failed {
		return io.ErrClosedPipe
	}
	if err := s.w.WriteJSON(v); err != nil {
		s.failed = true
		return err
	}
	return nil
}
