// Package chatcmder provides the chat command for talking to a running
// chatmem server.
package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatmem/pkg/cliui"
	"github.com/papercomputeco/chatmem/pkg/client"
	"github.com/papercomputeco/chatmem/pkg/config"
	"github.com/papercomputeco/chatmem/pkg/dotdir"
	"github.com/papercomputeco/chatmem/pkg/logger"
	"github.com/papercomputeco/chatmem/pkg/storage"
	"github.com/papercomputeco/chatmem/pkg/utils"
)

type chatCommander struct {
	apiTarget string
	chatID    string
	resume    bool
	configDir string
	debug     bool

	in  io.Reader
	out io.Writer

	client *client.Client
	ddm    *dotdir.Manager
	logger *slog.Logger
}

const chatLongDesc string = `Start an interactive chat session with a running chatmem server.

The first message of a new conversation gets a complete reply and a title;
later messages are streamed token by token. The server remembers facts,
preferences, experiences and topics from the conversation and uses them in
later replies.

The current conversation is saved in the .chatmem/ directory so that
"chatmem chat --resume" picks up where you left off.

Commands inside the session:
  /new     start a new conversation
  /exit    quit (Ctrl+D works too)

Examples:
  chatmem chat
  chatmem chat --resume
  chatmem chat --chat-id 5f0c6f1e-... --api-target http://localhost:8000`

const chatShortDesc string = "Interactive chat with a chatmem server"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagAPITarget})
			cmder.apiTarget = config.FromViper(v).Client.APITarget
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &cmder.apiTarget)
	cmd.Flags().StringVar(&cmder.chatID, "chat-id", "", "Continue the conversation with this id")
	cmd.Flags().BoolVarP(&cmder.resume, "resume", "r", false, "Continue the last conversation of this directory")

	return cmd
}

func (c *chatCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.logger == nil {
		c.logger = logger.New(logger.WithDebug(c.debug), logger.WithPretty(true), logger.WithWriter(os.Stderr))
	}
	c.client = client.New(c.apiTarget, client.WithLogger(c.logger))
	c.ddm = dotdir.NewManager()

	if err := c.client.Ping(ctx); err != nil {
		return fmt.Errorf("chatmem server at %s is not reachable: %w", c.apiTarget, err)
	}

	if err := c.restore(ctx); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /new for a new conversation, /exit or Ctrl+D to quit."))

	scanner := bufio.NewScanner(c.in)
	for {
		fmt.Fprint(c.out, cliui.UserPrompt)
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "/exit":
			fmt.Fprintln(c.out)
			return nil
		case "/new":
			c.chatID = ""
			if err := c.ddm.ClearChatState(c.configDir); err != nil {
				c.logger.Debug("failed to clear chat state", "error", err)
			}
			fmt.Fprintf(c.out, "\n  %s New conversation\n\n", cliui.DimStyle.Render("●"))
			continue
		}

		if err := c.turn(ctx, input); err != nil {
			if client.IsBusy(err) {
				fmt.Fprintf(c.out, "\n  %s %s\n\n", cliui.WarnStyle.Render("!"), "The model is busy with another request, try again in a moment.")
				continue
			}
			fmt.Fprintf(c.out, "\n  %s %v\n\n", cliui.FailMark, err)
			continue
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Fprintln(c.out)
	return nil
}

// restore picks the conversation to continue: --chat-id, then the saved
// chat state when --resume is set.
func (c *chatCommander) restore(ctx context.Context) error {
	fmt.Fprintln(c.out)

	fromState := false
	if c.chatID == "" && c.resume {
		state, err := c.ddm.LoadChatState(c.configDir)
		if err != nil {
			return fmt.Errorf("loading chat state: %w", err)
		}
		if state != nil {
			c.chatID = state.ChatID
			fromState = true
		}
	}

	if c.chatID == "" {
		fmt.Fprintf(c.out, "  %s New conversation\n", cliui.DimStyle.Render("●"))
		return nil
	}

	// GET /chat/:id answers an unknown id with an empty history, so the
	// conversation list is the only reliable existence check.
	found, err := c.chatExists(ctx, c.chatID)
	if err != nil {
		return fmt.Errorf("loading conversation %s: %w", c.chatID, err)
	}
	if !found && fromState {
		fmt.Fprintf(c.out, "  %s Saved conversation %s no longer exists\n",
			cliui.DimStyle.Render("●"), cliui.IDStyle.Render(utils.Truncate(c.chatID, 8)))
		c.chatID = ""
		if err := c.ddm.ClearChatState(c.configDir); err != nil {
			return fmt.Errorf("clearing chat state: %w", err)
		}
		fmt.Fprintf(c.out, "  %s New conversation\n", cliui.DimStyle.Render("●"))
		return nil
	}
	if !found {
		return fmt.Errorf("loading conversation %s: %w", c.chatID, storage.NotFoundError{ID: c.chatID})
	}

	msgs, err := c.client.Messages(ctx, c.chatID)
	if err != nil {
		return fmt.Errorf("loading conversation %s: %w", c.chatID, err)
	}

	fmt.Fprintf(c.out, "  %s Resuming %s %s\n",
		cliui.SuccessMark,
		cliui.IDStyle.Render(utils.Truncate(c.chatID, 8)),
		cliui.DimStyle.Render(fmt.Sprintf("(%d messages)", len(msgs))),
	)
	return nil
}

func (c *chatCommander) chatExists(ctx context.Context, id string) (bool, error) {
	convs, err := c.client.ListChats(ctx)
	if err != nil {
		return false, err
	}
	return slices.ContainsFunc(convs, func(conv *storage.Conversation) bool {
		return conv.ID == id
	}), nil
}

func (c *chatCommander) turn(ctx context.Context, input string) error {
	if c.chatID == "" {
		return c.firstTurn(ctx, input)
	}

	fmt.Fprintf(c.out, "\n%s", cliui.AssistantPrompt)
	done, err := c.client.ChatStream(ctx, c.chatID, input, func(token string) {
		fmt.Fprint(c.out, token)
	})
	if err != nil {
		var streamErr *client.StreamError
		if errors.As(err, &streamErr) {
			return fmt.Errorf("generation failed: %w", err)
		}
		return err
	}

	fmt.Fprintf(c.out, "\n\n  %s\n\n", c.memoryLine(done.MemoriesAdded, done.MemoryStats))
	return nil
}

func (c *chatCommander) firstTurn(ctx context.Context, input string) error {
	res, err := c.client.NewChat(ctx, input)
	if err != nil {
		return err
	}
	c.chatID = res.ConversationID

	if err := c.ddm.SaveChatState(&dotdir.ChatState{ChatID: res.ConversationID, Title: res.Title}, c.configDir); err != nil {
		c.logger.Debug("failed to save chat state", "error", err)
	}

	fmt.Fprintf(c.out, "\n  %s %s\n\n", cliui.KeyStyle.Render("Title:"), cliui.NameStyle.Render(res.Title))
	fmt.Fprintf(c.out, "%s%s\n\n", cliui.AssistantPrompt, strings.TrimRight(cliui.RenderReply(c.out, res.Response), "\n"))
	fmt.Fprintf(c.out, "  %s\n\n", c.memoryLine(res.MemoriesAdded, res.MemoryStats))
	return nil
}

func (c *chatCommander) memoryLine(added int, stats storage.MemoryCounts) string {
	return cliui.DimStyle.Render(fmt.Sprintf("memory +%d (facts %d, experiences %d, topics %d)",
		added, stats.Facts, stats.Experiences, stats.Topics))
}
