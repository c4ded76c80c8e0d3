package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Dahimi/File-Search-POC/internal/chat"
)

var (
	thinkingBudget int
	showThinking   bool
	chatModel      string
)

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().IntVar(&thinkingBudget, "thinking", chat.DynamicThinking, "thinking budget in tokens (-1 dynamic, 0 off)")
	chatCmd.Flags().BoolVar(&showThinking, "show-thinking", false, "print the model's reasoning before each answer")
	chatCmd.Flags().StringVar(&chatModel, "model", "", "override the configured model")
}

var chatCmd = &cobra.Command{
	Use:   "chat <store>",
	Short: "Ask questions about a store's documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		opts := chat.Options{Model: chatModel}
		if cmd.Flags().Changed("thinking") {
			opts.ThinkingBudget = chat.IntPtr(thinkingBudget)
		}

		store, err := a.Service.StoreInfo(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		headingColor.Printf("Chatting with %s (%d documents, model %s)\n", store.Label(), store.Active, a.Service.Model())
		dimColor.Println("Type /clear to reset the conversation, /exit to quit.")

		return runREPL(cmd.Context(), a.Service, store.ID, opts, os.Stdin, os.Stdout)
	},
}

type chatter interface {
	Chat(ctx context.Context, storeID, message string, opts chat.Options) (*chat.Result, error)
	ClearHistory(ctx context.Context, storeID string) error
}

// runREPL reads one question per line until EOF, /exit or ctx is done.
func runREPL(ctx context.Context, c chatter, storeID string, opts chat.Options, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Fprint(out, "\n> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/clear":
			if err := c.ClearHistory(ctx, storeID); err != nil {
				return err
			}
			successColor.Fprintln(out, "Conversation cleared.")
			continue
		}

		result, err := c.Chat(ctx, storeID, line, opts)
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		printAnswer(out, result, showThinking)
	}
}
