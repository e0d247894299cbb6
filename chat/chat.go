// Package chat implements the interactive terminal chat command. It drives
// the same session controller as the web client.
package chat

import (
	"context"
	"os"
	"os/signal"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/malonaz/wgpt/internal/attachment"
	"github.com/malonaz/wgpt/internal/cli"
	"github.com/malonaz/wgpt/internal/model"
	"github.com/malonaz/wgpt/internal/session"
	"github.com/malonaz/wgpt/internal/thread"
)

// NewCmd instantiates and returns the chat command.
func NewCmd(chatSession *session.Session) *cobra.Command {
	var opts struct {
		UseSearchGrounding bool
	}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Back and forth chat in the terminal",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			active := chatSession.ActiveThread()
			cli.Title("WGPT CHAT [%s](%s)", active.Model, active.ID)
			printHistory(active)

			var pendingFiles []string
			for {
				text, err := cli.PromptUser()
				if err != nil {
					// Interrupt or EOF at the prompt ends the session.
					return nil
				}
				text = strings.TrimSpace(text)

				if strings.HasPrefix(text, "/") {
					if exit := runCommand(chatSession, text, &pendingFiles, &opts.UseSearchGrounding); exit {
						return nil
					}
					continue
				}

				files := make([]attachment.File, 0, len(pendingFiles))
				for _, path := range pendingFiles {
					files = append(files, attachment.FromPath(path))
				}

				threadID := chatSession.ActiveThread().ID
				turnCtx, cancel := context.WithCancel(ctx)
				deltas, err := chatSession.SendTurn(turnCtx, threadID, text, files, opts.UseSearchGrounding)
				if errors.Is(err, session.ErrEmptyTurn) {
					cancel()
					continue
				}
				if err != nil {
					cancel()
					cli.Error("error: %v\n", err)
					continue
				}
				pendingFiles = nil

				// An interrupt cancels the turn, finalizing it with the
				// partial text streamed so far.
				interruptSignalChannel := make(chan os.Signal, 1)
				signal.Notify(interruptSignalChannel, os.Interrupt)
				go func() {
					select {
					case <-interruptSignalChannel:
						cli.UserCommand("#Interrupted\n")
						cancel()
					case <-turnCtx.Done():
					}
				}()

				cli.AIOutput("WGPT: ")
				for delta := range deltas {
					cli.AIOutput(delta.Text)
				}
				cli.AIOutput("\n")
				signal.Stop(interruptSignalChannel)
				cancel()
			}
		},
	}

	cmd.Flags().BoolVarP(&opts.UseSearchGrounding, "search", "s", false, "Enable search grounding")
	return cmd
}

// runCommand executes a slash command; it reports whether the loop should
// exit.
func runCommand(chatSession *session.Session, text string, pendingFiles *[]string, useSearchGrounding *bool) bool {
	fields := strings.Fields(text)
	switch fields[0] {
	case "/exit", "/quit":
		return true

	case "/new":
		created, err := chatSession.NewThread()
		if err != nil {
			cli.Error("error: %v\n", err)
			return false
		}
		cli.Title("WGPT CHAT [%s](%s)", created.Model, created.ID)

	case "/threads":
		for _, t := range chatSession.Threads() {
			marker := " "
			if t.ID == chatSession.ActiveThread().ID {
				marker = "*"
			}
			cli.UserInput("%s %s  %s\n", marker, t.ID, t.Title)
		}

	case "/switch":
		if len(fields) != 2 {
			cli.Error("usage: /switch <thread-id>\n")
			return false
		}
		if err := chatSession.Select(fields[1]); err != nil {
			cli.Error("error: %v\n", err)
			return false
		}
		active := chatSession.ActiveThread()
		cli.Title("WGPT CHAT [%s](%s)", active.Model, active.ID)
		printHistory(active)

	case "/delete":
		active := chatSession.ActiveThread()
		if !cli.QueryUser("Delete thread " + active.ID + "?") {
			return false
		}
		if err := chatSession.DeleteThread(active.ID); err != nil {
			cli.Error("error: %v\n", err)
			return false
		}
		active = chatSession.ActiveThread()
		cli.Title("WGPT CHAT [%s](%s)", active.Model, active.ID)
		printHistory(active)

	case "/model":
		if len(fields) != 2 {
			for _, m := range model.List() {
				cli.UserInput("%s (%s) - %s\n", m.ID, m.Alias, m.Description)
			}
			return false
		}
		if err := chatSession.SelectModel(fields[1]); err != nil {
			cli.Error("error: %v\n", err)
			return false
		}
		cli.UserCommand("#New threads will use %s\n", chatSession.Model())

	case "/attach":
		if len(fields) < 2 {
			cli.Error("usage: /attach <path> [path...]\n")
			return false
		}
		*pendingFiles = append(*pendingFiles, fields[1:]...)
		for i, path := range *pendingFiles {
			cli.FileInfo("attaching file #%d: %s\n", i+1, path)
		}

	case "/search":
		*useSearchGrounding = !*useSearchGrounding
		cli.UserCommand("#Search grounding: %v\n", *useSearchGrounding)

	default:
		cli.Error("unknown command %s\n", fields[0])
	}
	return false
}

func printHistory(t *thread.Thread) {
	for _, message := range t.Messages {
		switch message.Role {
		case thread.RoleUser:
			cli.UserInput("> %s\n", messageText(message))
		case thread.RoleModel:
			cli.AIOutput(messageText(message) + "\n")
		}
	}
}

func messageText(message *thread.Message) string {
	var texts []string
	for _, part := range message.Parts {
		if !part.IsData() {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}
