package main

import (
	"os"

	chatmemcmder "github.com/papercomputeco/chatmem/cmd/chatmem"
)

func main() {
	cmd := chatmemcmder.NewChatmemCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
