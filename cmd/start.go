package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/margooey/lapsusctl/internal/controller"
)

func NewStartCommand() *cobra.Command {
	var wait time.Duration

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the lapsus_rust daemon",
		Long: `Start the lapsus_rust daemon.

Loads the launchd service when its descriptor is installed, otherwise spawns
the resolved binary detached from this terminal. Starting an already running
daemon through launchd is not an error.`,
		Aliases: []string{"enable"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := buildController(cmd)
			if err != nil {
				return err
			}
			defer ctrl.Shutdown(context.WithoutCancel(cmd.Context()), false)

			if err := ctrl.Start(cmd.Context()); err != nil {
				if controller.IsBinaryMissing(err) {
					return fmt.Errorf("%w\nset the location with: lapsusctl config set-path <path>", err)
				}
				return err
			}

			if wait > 0 {
				if !waitForLiveness(cmd.Context(), ctrl, true, wait) {
					slog.Warn("Daemon did not come up within timeout, but start was requested", "timeout", wait)
					return nil
				}
				slog.Info("Daemon is running")
			}
			return nil
		},
	}
	startCmd.Flags().DurationVar(&wait, "wait", 0, "wait up to this long for the daemon to become live")

	return startCmd
}

// waitForLiveness polls every 100ms until the daemon reaches want or timeout elapses
func waitForLiveness(ctx context.Context, ctrl *controller.Controller, want bool, timeout time.Duration) bool {
	pollInterval := 100 * time.Millisecond
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if ctrl.Liveness(ctx) == want {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(pollInterval):
		}
	}
	return ctrl.Liveness(ctx) == want
}
