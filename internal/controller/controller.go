// Package controller is the presentation-facing facade over supervision:
// it answers liveness, starts and stops the daemon, reports out-of-band
// state changes and owns the persisted configuration.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/margooey/lapsusctl/internal/autolaunch"
	"github.com/margooey/lapsusctl/internal/core"
	"github.com/margooey/lapsusctl/internal/db"
	"github.com/margooey/lapsusctl/internal/metrics"
	"github.com/margooey/lapsusctl/internal/reconcile"
	"github.com/margooey/lapsusctl/internal/supervisor"
)

// Supervisor is the start/stop side the controller drives
type Supervisor interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Backend() supervisor.Backend
}

// EventLog receives best-effort history records
type EventLog interface {
	LogLivenessChange(running bool, source string) error
	LogControlEvent(action, backend, result, details string) error
	Close() error
}

// Params are the collaborators a Controller is assembled from.
// Registrar, Events and Metrics are optional.
type Params struct {
	Store        *core.Store
	Supervisor   Supervisor
	Probe        reconcile.Prober
	Registrar    autolaunch.Registrar
	Events       EventLog
	Metrics      *metrics.Metrics
	BinaryPath   string
	ResolveErr   error
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Controller wires the configuration store, supervisor, probe and
// reconciliation loop together
type Controller struct {
	store      *core.Store
	supervisor Supervisor
	probe      reconcile.Prober
	loop       *reconcile.Loop
	registrar  autolaunch.Registrar
	events     EventLog
	metrics    *metrics.Metrics
	binaryPath string
	resolveErr error
	logger     *slog.Logger
}

// New assembles a Controller. The reconciliation loop is primed with one
// probe here, and the controller's own history listener is registered first.
func New(ctx context.Context, p Params) *Controller {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := p.PollInterval
	if interval <= 0 {
		interval = core.DefaultPollInterval
	}

	c := &Controller{
		store:      p.Store,
		supervisor: p.Supervisor,
		probe:      p.Probe,
		registrar:  p.Registrar,
		events:     p.Events,
		metrics:    p.Metrics,
		binaryPath: p.BinaryPath,
		resolveErr: p.ResolveErr,
		logger:     logger,
	}

	c.loop = reconcile.New(ctx, p.Probe, interval)
	c.loop.Logger = logger
	if c.metrics != nil {
		c.metrics.SetDaemonUp(c.loop.Last())
	}
	c.loop.OnStateChanged(c.recordTransition)

	return c
}

// Liveness probes the daemon now
func (c *Controller) Liveness(ctx context.Context) bool {
	return c.probe.IsRunning(ctx)
}

// Start asks the supervisor to launch the daemon. Success means the request
// was accepted; liveness follows on a later tick.
func (c *Controller) Start(ctx context.Context) error {
	return c.control(ctx, "start", c.supervisor.Start)
}

// Stop asks the supervisor to terminate the daemon
func (c *Controller) Stop(ctx context.Context) error {
	return c.control(ctx, "stop", c.supervisor.Stop)
}

func (c *Controller) control(ctx context.Context, action string, fn func(context.Context) error) error {
	backend := string(c.supervisor.Backend())
	err := fn(ctx)

	result, details := db.ResultOK, ""
	if err != nil {
		result, details = db.ResultFailed, err.Error()
		c.logger.Error("Daemon "+action+" failed", "backend", backend, "error", err)
	} else {
		c.logger.Info("Daemon "+action+" requested", "backend", backend)
		c.loop.Nudge()
	}

	if c.events != nil {
		if logErr := c.events.LogControlEvent(action, backend, result, details); logErr != nil {
			c.logger.Warn("Failed to record control event", "action", action, "error", logErr)
		}
	}
	if c.metrics != nil {
		c.metrics.ObserveOperation(action, backend, result)
	}

	return err
}

func (c *Controller) recordTransition(running bool) {
	if c.events != nil {
		if err := c.events.LogLivenessChange(running, db.SourceProbe); err != nil {
			c.logger.Warn("Failed to record liveness change", "running", running, "error", err)
		}
	}
	if c.metrics != nil {
		c.metrics.ObserveTransition(running)
	}
}

// OnStateChanged registers fn for liveness edges observed by the loop
func (c *Controller) OnStateChanged(fn func(running bool)) {
	c.loop.OnStateChanged(fn)
}

// Loop exposes the reconciliation loop so callers can run or nudge it
func (c *Controller) Loop() *reconcile.Loop {
	return c.loop
}

// Metrics returns the collectors, or nil when metrics are disabled
func (c *Controller) Metrics() *metrics.Metrics {
	return c.metrics
}

// Events returns the event history, or nil when it could not be opened
func (c *Controller) Events() EventLog {
	return c.events
}

// Configuration returns a snapshot of the persisted settings
func (c *Controller) Configuration() core.Configuration {
	return c.store.Get()
}

// UpdateConfiguration mutates and persists the settings
func (c *Controller) UpdateConfiguration(mutate func(*core.Configuration)) error {
	return c.store.Update(mutate)
}

// SetStartAtLogin registers or unregisters the controller with the login
// items first, then persists the flag. A registration failure leaves the
// configuration untouched.
func (c *Controller) SetStartAtLogin(enable bool) error {
	if c.registrar != nil {
		var err error
		if enable {
			err = c.registrar.Enable()
		} else {
			err = c.registrar.Disable()
		}
		if err != nil {
			return fmt.Errorf("failed to update launch at login: %w", err)
		}
	}

	return c.store.Update(func(cfg *core.Configuration) {
		cfg.StartAtLogin = enable
	})
}

// SetShowIcon persists the presentation icon preference. It applies on the next launch.
func (c *Controller) SetShowIcon(show bool) error {
	return c.store.Update(func(cfg *core.Configuration) {
		cfg.ShowPresentationIcon = show
	})
}

// SetCustomBinaryPath persists a binary override, or clears it when path is empty.
// The resolved location is fixed for this process, so it applies on the next launch.
func (c *Controller) SetCustomBinaryPath(path string) error {
	return c.store.Update(func(cfg *core.Configuration) {
		cfg.CustomBinaryPath = path
	})
}

// BinaryPath returns the daemon location resolved at startup, or "" if none was found
func (c *Controller) BinaryPath() string {
	return c.binaryPath
}

// ResolveError returns the startup lookup failure, if any
func (c *Controller) ResolveError() error {
	return c.resolveErr
}

// Status summarises current state for the status endpoint and CLI
func (c *Controller) Status(ctx context.Context) metrics.Status {
	return metrics.Status{
		Running: c.Liveness(ctx),
		Backend: string(c.supervisor.Backend()),
		Binary:  c.binaryPath,
	}
}

// Shutdown optionally stops a running daemon and closes the event log
func (c *Controller) Shutdown(ctx context.Context, stopDaemon bool) error {
	var stopErr error
	if stopDaemon && c.Liveness(ctx) {
		stopErr = c.Stop(ctx)
	}

	if c.events != nil {
		if err := c.events.Close(); err != nil {
			c.logger.Warn("Failed to close event log", "error", err)
		}
		c.events = nil
	}

	return stopErr
}
