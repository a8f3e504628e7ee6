// Package chatscmder provides the chats command for listing and deleting
// conversations on a running chatmem server.
package chatscmder

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatmem/pkg/cliui"
	"github.com/papercomputeco/chatmem/pkg/client"
	"github.com/papercomputeco/chatmem/pkg/config"
	"github.com/papercomputeco/chatmem/pkg/dotdir"
	"github.com/papercomputeco/chatmem/pkg/utils"
)

const titleWidth = 48

type chatsCommander struct {
	apiTarget string
	configDir string
	out       io.Writer
}

func NewChatsCmd() *cobra.Command {
	cmder := &chatsCommander{}

	cmd := &cobra.Command{
		Use:   "chats",
		Short: "List and delete conversations",
		Long: `List and delete the conversations stored by a chatmem server.

Examples:
  chatmem chats list
  chatmem chats delete 5f0c6f1e-...`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagAPITarget})
			cmder.apiTarget = config.FromViper(v).Client.APITarget
			cmder.out = cmd.OutOrStdout()
			return nil
		},
	}

	config.AddPersistentStringFlag(cmd, config.Flags, config.FlagAPITarget, &cmder.apiTarget)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List conversations, most recently active first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.list(cmd.Context())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <chat-id>",
		Short: "Delete a conversation and everything remembered from it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.delete(cmd.Context(), args[0])
		},
	})

	return cmd
}

func (c *chatsCommander) list(ctx context.Context) error {
	chats, err := client.New(c.apiTarget).ListChats(ctx)
	if err != nil {
		return fmt.Errorf("listing chats: %w", err)
	}

	if len(chats) == 0 {
		fmt.Fprintf(c.out, "\n  %s\n\n", cliui.DimStyle.Render("No conversations yet. Start one with: chatmem chat"))
		return nil
	}

	fmt.Fprintf(c.out, "\n  %s\n\n", cliui.HeaderStyle.Render(fmt.Sprintf("Conversations (%d)", len(chats))))
	for _, conv := range chats {
		fmt.Fprintf(c.out, "  %s  %s  %s\n",
			cliui.IDStyle.Render(conv.ID),
			cliui.NameStyle.Render(utils.Truncate(conv.Title, titleWidth)),
			cliui.DimStyle.Render(conv.UpdatedAt.Local().Format(time.DateTime)),
		)
	}
	fmt.Fprintln(c.out)
	return nil
}

func (c *chatsCommander) delete(ctx context.Context, id string) error {
	if err := client.New(c.apiTarget).DeleteChat(ctx, id); err != nil {
		return fmt.Errorf("deleting chat %s: %w", id, err)
	}

	// Forget the resume pointer if it named the deleted chat.
	ddm := dotdir.NewManager()
	if state, err := ddm.LoadChatState(c.configDir); err == nil && state != nil && state.ChatID == id {
		_ = ddm.ClearChatState(c.configDir)
	}

	fmt.Fprintf(c.out, "  %s Deleted %s\n", cliui.SuccessMark, cliui.IDStyle.Render(id))
	return nil
}
