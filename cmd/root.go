package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/margooey/lapsusctl/internal/controller"
	"github.com/margooey/lapsusctl/internal/core"
)

type optionsKey struct{}

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lapsusctl",
		Short: "lapsusctl - control surface for the lapsus_rust daemon",
		Long: `lapsusctl finds, starts, stops and watches the lapsus_rust daemon.

When the launchd descriptor is installed the daemon is controlled through
launchctl, otherwise the binary is spawned and signalled directly.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts, err := core.InitializeConfig(cmd)
			if err != nil {
				return err
			}
			setupLogging(os.Stderr, opts.Verbose)
			cmd.SetContext(context.WithValue(cmd.Context(), optionsKey{}, opts))
			return nil
		},
	}
	core.AddPersistentFlags(rootCmd)

	rootCmd.AddCommand(
		NewStartCommand(),
		NewStopCommand(),
		NewStatusCommand(),
		NewWatchCommand(),
		NewConfigCommand(),
		NewEventsCommand(),
		NewVersionCommand(),
	)

	return rootCmd
}

// setupLogging installs tint on w as the default handler. Colors are only
// used when w is a terminal.
func setupLogging(w io.Writer, verbose int) {
	level := slog.LevelInfo
	if verbose > 0 {
		level = slog.LevelDebug
	}

	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !term.IsTerminal(int(f.Fd()))
	}

	handler := tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
		NoColor:    noColor,
	})
	slog.SetDefault(slog.New(handler))
}

func optionsFrom(cmd *cobra.Command) *core.Options {
	if opts, ok := cmd.Context().Value(optionsKey{}).(*core.Options); ok {
		return opts
	}
	// Commands executed without the root pre-run (tests) fall back to defaults
	opts, err := core.InitializeConfig(cmd)
	if err != nil {
		slog.Warn("Falling back to built-in defaults", "error", err)
		return &core.Options{Label: core.DefaultLabel, BinaryName: core.DefaultBinaryName, PollInterval: core.DefaultPollInterval}
	}
	return opts
}

func buildController(cmd *cobra.Command) (*controller.Controller, error) {
	return controller.Build(cmd.Context(), optionsFrom(cmd), slog.Default())
}
