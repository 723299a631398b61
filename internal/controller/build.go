package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/margooey/lapsusctl/internal/autolaunch"
	"github.com/margooey/lapsusctl/internal/core"
	"github.com/margooey/lapsusctl/internal/db"
	"github.com/margooey/lapsusctl/internal/launchd"
	"github.com/margooey/lapsusctl/internal/locate"
	"github.com/margooey/lapsusctl/internal/metrics"
	"github.com/margooey/lapsusctl/internal/probe"
	"github.com/margooey/lapsusctl/internal/proctable"
	"github.com/margooey/lapsusctl/internal/supervisor"
)

// Build assembles a Controller against the real system from opts.
// A missing daemon binary is not fatal: the error is kept for ResolveError
// and the launchd backend can still operate.
func Build(ctx context.Context, opts *core.Options, logger *slog.Logger) (*Controller, error) {
	if logger == nil {
		logger = slog.Default()
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot find home directory: %w", err)
	}

	store := core.NewStore(opts.SettingsPath)
	cfg := store.Get()

	exeDir := ""
	if exe, err := os.Executable(); err == nil {
		exeDir = filepath.Dir(exe)
	}
	resolver := &locate.Resolver{
		Binary:     opts.BinaryName,
		Candidates: locate.DefaultCandidates(cfg, exeDir, home, opts.BinaryName, opts.DevPath),
	}
	binaryPath, resolveErr := resolver.Resolve()
	if resolveErr != nil {
		logger.Warn("Daemon binary not found", "error", resolveErr)
	} else {
		logger.Debug("Resolved daemon binary", "path", binaryPath)
	}

	service := launchd.New(opts.Label, opts.PlistPath)
	table := proctable.System{}

	sup := &supervisor.Supervisor{
		BinaryPath:     binaryPath,
		BinaryName:     opts.BinaryName,
		Service:        service,
		Table:          table,
		Spawner:        supervisor.DetachedSpawner{},
		CommandTimeout: opts.CommandTimeout,
		Logger:         logger,
	}
	prb := &probe.Probe{
		Service:    service,
		Table:      table,
		BinaryName: opts.BinaryName,
		Logger:     logger,
	}

	var registrar autolaunch.Registrar
	if agent, err := autolaunch.NewLaunchAgent(home, core.ControllerLabel, "watch"); err != nil {
		logger.Warn("Launch at login unavailable", "error", err)
	} else {
		registrar = agent
	}

	var events EventLog
	database, err := db.Open(opts.DatabasePath())
	if err != nil {
		logger.Warn("Event history unavailable", "path", opts.DatabasePath(), "error", err)
	} else {
		events = database
	}

	c := New(ctx, Params{
		Store:        store,
		Supervisor:   sup,
		Probe:        prb,
		Registrar:    registrar,
		Events:       events,
		Metrics:      metrics.New(),
		BinaryPath:   binaryPath,
		ResolveErr:   resolveErr,
		PollInterval: opts.PollInterval,
		Logger:       logger,
	})

	// Only a state that differs from the stored history is a transition
	if database != nil {
		if _, err := database.LogLivenessIfChanged(c.loop.Last(), db.SourceStartup); err != nil {
			logger.Debug("Failed to record startup liveness", "error", err)
		}
	}

	return c, nil
}

// IsBinaryMissing reports whether err means the daemon binary could not be located
func IsBinaryMissing(err error) bool {
	var nf *locate.NotFoundError
	return errors.As(err, &nf) || errors.Is(err, supervisor.ErrBinaryMissing)
}
