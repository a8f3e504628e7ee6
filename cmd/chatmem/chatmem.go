// Package chatmemcmder is the root chatmem command.
package chatmemcmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/chatmem/cmd/chatmem/chat"
	chatscmder "github.com/papercomputeco/chatmem/cmd/chatmem/chats"
	configcmder "github.com/papercomputeco/chatmem/cmd/chatmem/config"
	initcmder "github.com/papercomputeco/chatmem/cmd/chatmem/init"
	servecmder "github.com/papercomputeco/chatmem/cmd/chatmem/serve"
	versioncmder "github.com/papercomputeco/chatmem/cmd/version"
)

const chatmemLongDesc string = `chatmem is a chat server with memory in front of a single local model.

Conversations, and the facts, preferences, experiences and topics learned
from them, are stored and fed back into later prompts.

Run the server and talk to it using:
  chatmem serve        Run the API server
  chatmem chat         Chat interactively with a running server
  chatmem chats        List or delete conversations`

const chatmemShortDesc string = "chatmem - chat with memory"

func NewChatmemCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "chatmem",
		Short:         chatmemShortDesc,
		Long:          chatmemLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to the .chatmem/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(chatscmder.NewChatsCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
