// Package proctable enumerates and signals OS processes.
package proctable

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"
)

// Process is a single process table entry
type Process struct {
	PID  int32
	Name string
}

// Table lists processes and delivers termination signals
type Table interface {
	List(ctx context.Context) ([]Process, error)
	Terminate(ctx context.Context, pid int32) error
}

// System reads the live process table through gopsutil
type System struct{}

// List returns every process whose name could be read, excluding the caller itself
func (System) List(ctx context.Context) ([]Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get process list: %w", err)
	}

	self := int32(os.Getpid())
	result := make([]Process, 0, len(procs))
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		name, err := p.NameWithContext(ctx)
		if err != nil {
			// Exited between enumeration and lookup, or not ours to inspect
			continue
		}
		result = append(result, Process{PID: p.Pid, Name: name})
	}
	return result, nil
}

// Terminate sends SIGTERM to pid
func (System) Terminate(ctx context.Context, pid int32) error {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return fmt.Errorf("process %d: %w", pid, err)
	}
	if err := p.SendSignalWithContext(ctx, unix.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM to %d: %w", pid, err)
	}
	return nil
}

// MatchName reports whether a process name belongs to binary (exact or prefix match)
func MatchName(name, binary string) bool {
	if binary == "" {
		return false
	}
	return name == binary || strings.HasPrefix(name, binary)
}

// Matching returns the processes in table whose name matches binary
func Matching(ctx context.Context, table Table, binary string) ([]Process, error) {
	procs, err := table.List(ctx)
	if err != nil {
		return nil, err
	}

	var matches []Process
	for _, p := range procs {
		if MatchName(p.Name, binary) {
			matches = append(matches, p)
		}
	}
	return matches, nil
}
