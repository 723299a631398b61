package cmd

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/margooey/lapsusctl/internal/supervisor"
)

func NewStopCommand() *cobra.Command {
	var wait time.Duration

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the lapsus_rust daemon",
		Long: `Stop the lapsus_rust daemon.

Unloads the launchd service when its descriptor is installed, otherwise sends
SIGTERM to every process named lapsus_rust.`,
		Aliases: []string{"disable"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := buildController(cmd)
			if err != nil {
				return err
			}
			defer ctrl.Shutdown(context.WithoutCancel(cmd.Context()), false)

			if err := ctrl.Stop(cmd.Context()); err != nil {
				if errors.Is(err, supervisor.ErrNotRunning) {
					slog.Warn("Daemon is not running")
					return nil
				}
				return err
			}

			if wait > 0 {
				if !waitForLiveness(cmd.Context(), ctrl, false, wait) {
					slog.Warn("Daemon did not shut down within timeout, but stop was requested", "timeout", wait)
					return nil
				}
				slog.Info("Daemon stopped")
			}
			return nil
		},
	}
	stopCmd.Flags().DurationVar(&wait, "wait", 0, "wait up to this long for the daemon to exit")

	return stopCmd
}
