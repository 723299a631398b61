// Package supervisor starts and stops the daemon through launchd when a
// service descriptor is installed, and through direct process control otherwise.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/margooey/lapsusctl/internal/launchd"
	"github.com/margooey/lapsusctl/internal/proctable"
)

// Backend identifies which control path a call takes
type Backend string

const (
	BackendLaunchd Backend = "launchd"
	BackendDirect  Backend = "direct"
)

// Service is the service-manager side of supervision
type Service interface {
	DescriptorExists() bool
	Load(ctx context.Context) error
	Unload(ctx context.Context) error
}

// Supervisor owns the resolved binary location for its whole lifetime
type Supervisor struct {
	BinaryPath string
	BinaryName string
	Service    Service
	Table      proctable.Table
	Spawner    Spawner
	// CommandTimeout bounds each launchctl call; zero means no timeout.
	CommandTimeout time.Duration
	Logger         *slog.Logger
}

// Backend reports the control path for the current filesystem state.
// It is evaluated on every call so installing or removing the descriptor takes effect immediately.
func (s *Supervisor) Backend() Backend {
	if s.Service != nil && s.Service.DescriptorExists() {
		return BackendLaunchd
	}
	return BackendDirect
}

// Start launches the daemon. It does not wait for readiness.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.Backend() == BackendLaunchd {
		return s.startService(ctx)
	}
	return s.startDirect()
}

// Stop terminates the daemon
func (s *Supervisor) Stop(ctx context.Context) error {
	if s.Backend() == BackendLaunchd {
		return s.stopService(ctx)
	}
	return s.stopDirect(ctx)
}

func (s *Supervisor) startService(ctx context.Context) error {
	err := s.withTimeout(ctx, s.Service.Load)
	if err == nil {
		s.logger().Info("Loaded daemon service")
		return nil
	}
	if launchd.IsAlreadyLoaded(err) {
		s.logger().Debug("Daemon service already loaded", "error", err)
		return nil
	}
	return s.backendError("start", err)
}

func (s *Supervisor) stopService(ctx context.Context) error {
	err := s.withTimeout(ctx, s.Service.Unload)
	if err == nil {
		s.logger().Info("Unloaded daemon service")
		return nil
	}
	if launchd.IsNotLoaded(err) {
		s.logger().Debug("Daemon service was not loaded", "error", err)
		return nil
	}
	return s.backendError("stop", err)
}

func (s *Supervisor) startDirect() error {
	if s.BinaryPath == "" {
		return &Error{Kind: KindBinaryMissing, Op: "start", Message: "daemon binary was not located at startup"}
	}
	if _, err := os.Stat(s.BinaryPath); err != nil {
		return &Error{Kind: KindBinaryMissing, Op: "start", Message: fmt.Sprintf("not found at %s", s.BinaryPath), Err: err}
	}

	spawner := s.Spawner
	if spawner == nil {
		spawner = DetachedSpawner{}
	}

	pid, err := spawner.Spawn(s.BinaryPath)
	if err != nil {
		return &Error{Kind: KindBackendFailed, Op: "start", Message: err.Error(), Err: err}
	}

	s.logger().Info("Spawned daemon", "path", s.BinaryPath, "pid", pid)
	return nil
}

func (s *Supervisor) stopDirect(ctx context.Context) error {
	if s.Table == nil {
		return &Error{Kind: KindBackendFailed, Op: "stop", Message: "no process table available"}
	}

	matches, err := proctable.Matching(ctx, s.Table, s.BinaryName)
	if err != nil {
		return &Error{Kind: KindBackendFailed, Op: "stop", Message: err.Error(), Err: err}
	}
	if len(matches) == 0 {
		return &Error{Kind: KindNotRunning, Op: "stop", Message: s.BinaryName + " process not found"}
	}

	signaled := 0
	var lastErr error
	for _, p := range matches {
		if err := s.Table.Terminate(ctx, p.PID); err != nil {
			s.logger().Warn("Failed to terminate daemon process", "pid", p.PID, "error", err)
			lastErr = err
			continue
		}
		signaled++
		s.logger().Info("Sent SIGTERM to daemon", "pid", p.PID)
	}

	if signaled == 0 {
		return &Error{Kind: KindBackendFailed, Op: "stop", Message: lastErr.Error(), Err: lastErr}
	}
	return nil
}

func (s *Supervisor) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	if s.CommandTimeout <= 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, s.CommandTimeout)
	defer cancel()

	err := fn(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: fmt.Sprintf("launchctl did not return within %s", s.CommandTimeout), Err: err}
	}
	return err
}

func (s *Supervisor) backendError(op string, err error) error {
	var supErr *Error
	if errors.As(err, &supErr) {
		supErr.Op = op
		return supErr
	}
	return &Error{Kind: KindBackendFailed, Op: op, Message: err.Error(), Err: err}
}

func (s *Supervisor) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
