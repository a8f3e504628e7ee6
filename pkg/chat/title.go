package chat

import (
	"context"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/papercomputeco/chatmem/pkg/generation"
	"github.com/papercomputeco/chatmem/pkg/prompt"
	"github.com/papercomputeco/chatmem/pkg/utils"
)

const (
	// DefaultTitle names a conversation whose first message has no words.
	DefaultTitle = "New Chat"

	maxTitleLen    = 50
	titleInputRune = 100
)

// TitleParams are the sampling parameters for title generation.
var TitleParams = generation.Params{
	MaxTokens:   20,
	Temperature: 0.3,
	TopP:        0.95,
	Stop:        []string{prompt.EndOfTurn, "\n"},
}

// Titler names new conversations.
type Titler struct {
	gen    generation.Generator
	logger *slog.Logger
}

// NewTitler returns a Titler that asks gen for titles.
func NewTitler(gen generation.Generator, logger *slog.Logger) *Titler {
	return &Titler{gen: gen, logger: logger}
}

// Title asks the model for a short title for a conversation starting with
// message. Any failure, or an empty or overlong answer, falls back to
// FallbackTitle.
func (t *Titler) Title(ctx context.Context, message string) string {
	raw, err := t.gen.Complete(ctx, TitlePrompt(message), TitleParams)
	if err != nil {
		t.logger.Debug("title generation failed, using fallback", "error", err)
		return FallbackTitle(message)
	}

	title := cleanTitle(raw)
	if title == "" || utf8.RuneCountInString(title) > maxTitleLen {
		return FallbackTitle(message)
	}
	return title
}

// TitlePrompt is the completion prompt used to title a conversation: a
// single user turn followed by an open assistant header.
func TitlePrompt(message string) string {
	return prompt.Render(nil, "Create a very short (2-4 words) title for a chat that starts with: '"+
		utils.HeadRunes(message, titleInputRune)+"'\n\nTitle:")
}

// FallbackTitle capitalizes the first three words of message.
func FallbackTitle(message string) string {
	words := strings.Fields(message)
	if len(words) == 0 {
		return DefaultTitle
	}
	if len(words) > 3 {
		words = words[:3]
	}
	return capitalize(strings.Join(words, " "))
}

// cleanTitle drops at most one quote from each end of the answer.
func cleanTitle(raw string) string {
	title := strings.TrimSpace(raw)
	for _, q := range []string{`"`, "'"} {
		if t, ok := strings.CutPrefix(title, q); ok {
			title = t
			break
		}
	}
	for _, q := range []string{`"`, "'"} {
		if t, ok := strings.CutSuffix(title, q); ok {
			title = t
			break
		}
	}
	return strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
