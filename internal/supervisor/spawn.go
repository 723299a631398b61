package supervisor

import (
	"fmt"
	"log/slog"
	"os/exec"
	"syscall"
)

// Spawner launches the daemon binary without waiting for it
type Spawner interface {
	Spawn(path string) (pid int, err error)
}

// DetachedSpawner starts the binary in its own session with stdin, stdout and stderr discarded
type DetachedSpawner struct{}

func (DetachedSpawner) Spawn(path string) (int, error) {
	cmd := exec.Command(path)
	// nil streams are connected to the null device
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // Survive the controller's terminal and process group
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to spawn %s: %w", path, err)
	}

	pid := cmd.Process.Pid
	// Reap the child when it exits so it never lingers as a zombie that the probe would count as live
	go func() {
		err := cmd.Wait()
		slog.Debug("Spawned daemon exited", "pid", pid, "error", err)
	}()

	return pid, nil
}
