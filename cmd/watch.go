package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/margooey/lapsusctl/internal/controller"
	"github.com/margooey/lapsusctl/internal/core"
	"github.com/margooey/lapsusctl/internal/metrics"
	"github.com/margooey/lapsusctl/internal/power"
	"github.com/margooey/lapsusctl/internal/reconcile"
	"github.com/margooey/lapsusctl/internal/supervisor"
)

const watchHelp = `Actions:
  start | enable        start the daemon
  stop  | disable       stop the daemon
  status                print current liveness
  login on|off          toggle start at login
  icon on|off           toggle the presentation icon (applies on next launch)
  quit                  leave watch
`

func NewWatchCommand() *cobra.Command {
	var stopOnExit bool
	var metricsAddr string

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the daemon and accept actions on stdin",
		Long: `Watch the daemon and accept actions on stdin.

Liveness is re-probed every poll interval and every change is printed as it
is observed, including crashes and restarts made outside lapsusctl. Actions
typed on stdin are picked up on the next 100ms tick.

` + watchHelp,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, unix.SIGTERM)
			defer stop()

			opts := optionsFrom(cmd)
			ctrl, err := buildController(cmd)
			if err != nil {
				return err
			}
			defer func() {
				if err := ctrl.Shutdown(context.WithoutCancel(ctx), stopOnExit); err != nil {
					slog.Error("Failed to stop daemon on exit", "error", err)
				}
			}()

			out := cmd.OutOrStdout()
			if err := ctrl.ResolveError(); err != nil {
				slog.Warn("Direct start unavailable until the binary is found", "error", err)
			}
			printLiveness(out, ctrl.Loop().Last())
			ctrl.OnStateChanged(func(running bool) {
				printLiveness(out, running)
			})

			watcher, err := reconcile.WatchDescriptor(ctx, opts.PlistPath, ctrl.Loop(), slog.Default())
			if err != nil {
				slog.Warn("Not watching service descriptor", "error", err)
			} else {
				defer watcher.Close()
			}

			power.NewWatcher(ctrl.Loop(), slog.Default()).Start(ctx)

			if metricsAddr != "" {
				srv := serveMetrics(ctx, ctrl, metricsAddr)
				defer srv.Shutdown(context.WithoutCancel(ctx))
			}

			readCtx, stopReading := context.WithCancel(ctx)
			defer stopReading()
			actions := make(chan string, 16)
			go readActions(readCtx, cmd.InOrStdin(), actions)

			return runWatchLoop(ctx, ctrl, opts.PollInterval, actions, out)
		},
	}
	watchCmd.Flags().BoolVar(&stopOnExit, "stop-on-exit", false, "stop the daemon when leaving watch")
	watchCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics and /status on this address (e.g. 127.0.0.1:9464)")

	return watchCmd
}

// runWatchLoop drives the UI tick and the reconciliation tick from one
// goroutine, so actions and probes never run concurrently.
func runWatchLoop(ctx context.Context, ctrl *controller.Controller, interval time.Duration, actions <-chan string, out io.Writer) error {
	if interval <= 0 {
		interval = core.DefaultPollInterval
	}
	loop := ctrl.Loop()

	uiTick := time.NewTicker(core.DefaultUITick)
	defer uiTick.Stop()
	reconcileTick := time.NewTicker(interval)
	defer reconcileTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-uiTick.C:
			for pending := true; pending; {
				select {
				case line, ok := <-actions:
					if !ok {
						// stdin closed, keep watching until signalled
						actions = nil
						pending = false
						continue
					}
					if quit := handleAction(ctx, ctrl, line, out); quit {
						return nil
					}
				default:
					pending = false
				}
			}

		case <-reconcileTick.C:
			loop.Tick(ctx)

		case <-loop.Nudged():
			loop.Tick(ctx)
		}
	}
}

// readActions forwards non-empty stdin lines until r ends or ctx is done
func readActions(ctx context.Context, r io.Reader, actions chan<- string) {
	defer close(actions)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		select {
		case actions <- line:
		case <-ctx.Done():
			return
		}
	}
}

// handleAction executes one stdin action and reports whether watch should end
func handleAction(ctx context.Context, ctrl *controller.Controller, line string, out io.Writer) bool {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "start", "enable":
		if err := ctrl.Start(ctx); err != nil {
			fmt.Fprintf(out, "Failed to start lapsus_rust: %v\n", err)
		}
	case "stop", "disable":
		if err := ctrl.Stop(ctx); err != nil {
			if errors.Is(err, supervisor.ErrNotRunning) {
				fmt.Fprintln(out, "lapsus_rust is not running")
			} else {
				fmt.Fprintf(out, "Failed to stop lapsus_rust: %v\n", err)
			}
		}
	case "status":
		printLiveness(out, ctrl.Liveness(ctx))
	case "login", "icon":
		if len(fields) != 2 || (fields[1] != "on" && fields[1] != "off") {
			fmt.Fprintf(out, "usage: %s on|off\n", fields[0])
			return false
		}
		enable := fields[1] == "on"
		var err error
		if fields[0] == "login" {
			err = ctrl.SetStartAtLogin(enable)
		} else {
			err = ctrl.SetShowIcon(enable)
		}
		if err != nil {
			fmt.Fprintf(out, "Failed to update %s: %v\n", fields[0], err)
		} else {
			fmt.Fprintf(out, "%s: %s\n", fields[0], onOff(enable))
		}
	case "quit", "exit":
		return true
	case "help", "?":
		fmt.Fprint(out, watchHelp)
	default:
		fmt.Fprintf(out, "unknown action %q, try help\n", fields[0])
	}
	return false
}

func printLiveness(out io.Writer, running bool) {
	state := "stopped"
	if running {
		state = "running"
	}
	fmt.Fprintf(out, "%s lapsus_rust %s\n", time.Now().Format(time.TimeOnly), state)
}

func serveMetrics(ctx context.Context, ctrl *controller.Controller, addr string) *http.Server {
	srv := &http.Server{
		Addr: addr,
		Handler: ctrl.Metrics().Handler(func() metrics.Status {
			return ctrl.Status(ctx)
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("Serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()
	return srv
}
