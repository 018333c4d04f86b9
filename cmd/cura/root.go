package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"curaai.dev/cura/internal/client"
	"curaai.dev/cura/internal/logging"
	"curaai.dev/cura/internal/store"
)

const defaultServer = "http://localhost:3000/api"

// app carries what every subcommand needs once flags are parsed.
type app struct {
	serverURL string
	statePath string
	logLevel  string

	in     *bufio.Reader
	out    io.Writer
	online func() bool
	log    *zap.Logger
	gw     *client.Gateway
}

func newApp(in io.Reader, out io.Writer) *app {
	return &app{in: bufio.NewReader(in), out: out, online: client.Online}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cura",
		Short: "Cura AI medical information assistant",
		Long: `Cura AI is an informational chat assistant with four guided modes:
symptom, lab, prescription and medication.

It is not a doctor and cannot provide diagnoses, treatment or prescriptions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	rootCmd.SetOut(a.out)

	rootCmd.PersistentFlags().StringVar(&a.serverURL, "server", defaultServer, "Backend API root URL")
	rootCmd.PersistentFlags().StringVar(&a.statePath, "state", "", "State file holding identity and consent (default: $XDG_CONFIG_HOME/cura/state.yaml)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "error", "Log level written to stderr")

	rootCmd.AddCommand(newConsentCmd(a))
	rootCmd.AddCommand(newChatCmd(a))
	rootCmd.AddCommand(newHistoryCmd(a))
	rootCmd.AddCommand(newExportCmd(a))
	return rootCmd
}

func (a *app) init() error {
	if a.statePath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("locating config dir (use --state): %w", err)
		}
		a.statePath = filepath.Join(dir, "cura", "state.yaml")
	}
	kv, err := client.OpenFileKV(a.statePath)
	if err != nil {
		return err
	}
	a.log = logging.New(a.logLevel, "")
	a.gw = client.NewGateway(a.serverURL, kv, client.WithLogger(a.log))
	return nil
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// readLine returns the next input line without its terminator. io.EOF is
// returned only when no input is left.
func (a *app) readLine() (string, error) {
	line, err := a.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// confirm asks a yes/no question; anything but y or yes is a no.
func (a *app) confirm(question string) bool {
	a.printf("%s [y/N]: ", question)
	line, err := a.readLine()
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func modeArg(args []string) (store.Mode, error) {
	return store.ParseMode(args[0])
}

func modeNames() []string {
	names := make([]string, 0, len(store.Modes))
	for _, m := range store.Modes {
		names = append(names, string(m))
	}
	return names
}
