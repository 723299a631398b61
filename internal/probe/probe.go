// Package probe answers whether the supervised daemon is currently live.
package probe

import (
	"context"
	"log/slog"

	"github.com/margooey/lapsusctl/internal/proctable"
)

// ServiceQuerier reports the process ID the service manager knows for the daemon
type ServiceQuerier interface {
	PID(ctx context.Context) (pid int, ok bool, err error)
}

// Probe combines the service-manager query and a process table scan.
// Either signal alone is enough to report the daemon as live.
type Probe struct {
	Service    ServiceQuerier
	Table      proctable.Table
	BinaryName string
	Logger     *slog.Logger
}

// IsRunning never fails: probe errors are logged at debug level and count as "not running".
func (p *Probe) IsRunning(ctx context.Context) bool {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if p.Service != nil {
		pid, ok, err := p.Service.PID(ctx)
		switch {
		case err != nil:
			logger.Debug("Service manager query failed", "error", err)
		case ok:
			logger.Debug("Daemon live according to service manager", "pid", pid)
			return true
		}
	}

	if p.Table != nil {
		matches, err := proctable.Matching(ctx, p.Table, p.BinaryName)
		if err != nil {
			logger.Debug("Process table scan failed", "error", err)
			return false
		}
		if len(matches) > 0 {
			logger.Debug("Daemon live according to process table", "pid", matches[0].PID, "matches", len(matches))
			return true
		}
	}

	return false
}
