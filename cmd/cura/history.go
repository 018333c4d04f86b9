package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"curaai.dev/cura/internal/client"
)

func newHistoryCmd(a *app) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or clear a mode's saved conversation",
	}

	showCmd := &cobra.Command{
		Use:       "show <mode>",
		Short:     "Print the saved conversation",
		Args:      cobra.ExactArgs(1),
		ValidArgs: modeNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := modeArg(args)
			if err != nil {
				return err
			}
			msgs, ok := a.gw.GetHistory(cmd.Context(), mode)
			if !ok {
				return fmt.Errorf("history is unavailable: the server did not answer")
			}
			if len(msgs) == 0 {
				a.printf("No saved messages for %s.\n", mode)
				return nil
			}
			for _, m := range msgs {
				a.printf("[%s] %s\n", strings.ToUpper(string(m.Role)), m.Text)
			}
			return nil
		},
	}

	var yes bool
	clearCmd := &cobra.Command{
		Use:       "clear <mode>",
		Short:     "Delete the saved conversation",
		Args:      cobra.ExactArgs(1),
		ValidArgs: modeNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := modeArg(args)
			if err != nil {
				return err
			}
			if !yes && !a.confirm("Are you sure you want to clear this chat history?") {
				a.printf("Cancelled.\n")
				return nil
			}
			if err := a.gw.ClearHistory(cmd.Context(), mode); err != nil {
				return err
			}
			a.printf("History cleared.\n")
			return nil
		},
	}
	clearCmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	historyCmd.AddCommand(showCmd, clearCmd)
	return historyCmd
}

func newExportCmd(a *app) *cobra.Command {
	var dir string
	exportCmd := &cobra.Command{
		Use:       "export <mode>",
		Short:     "Write the saved conversation to a text file",
		Args:      cobra.ExactArgs(1),
		ValidArgs: modeNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := modeArg(args)
			if err != nil {
				return err
			}
			conv := client.NewConversation(mode, a.gw, client.WithConversationLogger(a.log))
			defer conv.Close()
			if err := conv.Load(cmd.Context()); err != nil {
				return err
			}
			path, err := writeTranscript(conv, dir, time.Now())
			if err != nil {
				return err
			}
			a.printf("Saved %s\n", path)
			return nil
		},
	}
	exportCmd.Flags().StringVar(&dir, "dir", ".", "Directory to write the transcript into")
	return exportCmd
}

func writeTranscript(conv *client.Conversation, dir string, now time.Time) (string, error) {
	name, content := conv.Export(now)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing transcript: %w", err)
	}
	return path, nil
}
