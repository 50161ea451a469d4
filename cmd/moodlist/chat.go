package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ewilliams-labs/moodlist/internal/core/domain"
)

var chatSessionID string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to moodlist in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		sessionID := chatSessionID
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		return chatLoop(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), a.orchestrator, sessionID)
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatSessionID, "session", "", "Session id (default: a new random id)")
}

type messageHandler interface {
	HandleMessage(ctx context.Context, sessionID, text string) (domain.ChatReply, error)
}

// chatLoop reads one message per line until EOF, "quit" or "exit".
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, svc messageHandler, sessionID string) error {
	fmt.Fprintln(out, "🎧 Tell me how you're feeling. Type 'quit' to leave.")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit":
			fmt.Fprintln(out, "bye 👋")
			return nil
		}

		reply, err := svc.HandleMessage(ctx, sessionID, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(out, domain.UserMessage(err))
			continue
		}
		fmt.Fprintln(out, reply.Message)
		if reply.Payload != nil {
			printTracks(out, reply.Payload.Tracks)
		}
	}
}

func printTracks(out io.Writer, tracks []domain.ResolvedTrack) {
	for i, t := range tracks {
		fmt.Fprintf(out, "%2d. %s - %s\n    %s\n", i+1, t.Name, strings.Join(t.Artists, ", "), t.URL)
	}
}
