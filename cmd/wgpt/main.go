package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/malonaz/wgpt/chat"
	"github.com/malonaz/wgpt/internal/configuration"
	"github.com/malonaz/wgpt/internal/llm"
	"github.com/malonaz/wgpt/internal/model"
	"github.com/malonaz/wgpt/internal/session"
	"github.com/malonaz/wgpt/internal/thread"
	"github.com/malonaz/wgpt/webserver"
)

const configFilepath = "~/.wgpt/config.json"

var rootCmd = &cobra.Command{
	Use:     "wgpt",
	Short:   "A browser-based chat client for LLM conversations",
	Version: "1.0",
}

func main() {
	config, err := configuration.Parse(configFilepath)
	if err != nil {
		panic(err)
	}

	// Create store.
	store, err := thread.Open(config.Chat.DatabasePath)
	if err != nil {
		panic(err)
	}
	// Ensure store is closed when the program exits normally.
	defer store.Close()

	client := llm.NewOpenAIClient(
		config.APIKey,
		config.APIHost,
		config.SystemInstruction,
		config.SearchGroundingSuffix,
	)
	chatSession, err := session.New(store, client, config.Chat.DefaultModel, time.Duration(config.RequestTimeout)*time.Second)
	if err != nil {
		panic(err)
	}

	rootCmd.AddCommand(webserver.NewCmd(config, chatSession))
	rootCmd.AddCommand(chat.NewCmd(chatSession))
	rootCmd.AddCommand(model.NewListCmd())
	rootCmd.Execute()
}
