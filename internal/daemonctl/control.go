// Package daemonctl inspects and stops a running sieldd through its PID file.
package daemonctl

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"sield/internal/daemon"
)

// State describes what the PID file says about the daemon.
type State string

const (
	StateRunning State = "running"
	StateStopped State = "stopped"
	StateStale   State = "stale"
)

// Status is a point-in-time view of the daemon process.
type Status struct {
	State   State
	PID     int
	PIDFile string
	Started time.Time
}

// Check reads the PID file and checks whether the recorded process is alive.
func Check(pidFile string) (Status, error) {
	st := Status{State: StateStopped, PIDFile: pidFile}
	pid, alive, err := daemon.Running(pidFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return st, nil
		}
		return st, err
	}
	st.PID = pid
	if !alive {
		st.State = StateStale
		return st, nil
	}
	st.State = StateRunning
	if proc, err := process.NewProcess(int32(pid)); err == nil {
		if ms, err := proc.CreateTime(); err == nil {
			st.Started = time.UnixMilli(ms)
		}
	}
	return st, nil
}

// Stop sends SIGTERM and waits up to timeout for the process to exit.
func Stop(pidFile string, timeout time.Duration) (Status, error) {
	st, err := Check(pidFile)
	if err != nil || st.State != StateRunning {
		return st, err
	}
	if err := syscall.Kill(st.PID, syscall.SIGTERM); err != nil {
		return st, fmt.Errorf("signal pid %d: %w", st.PID, err)
	}
	return st, WaitForShutdown(st.PID, timeout)
}

// WaitForShutdown polls until pid is gone or timeout passes.
func WaitForShutdown(pid int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		alive, err := process.PidExists(int32(pid))
		if err != nil {
			return fmt.Errorf("check pid %d: %w", pid, err)
		}
		if !alive {
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("daemon (pid %d) still running after %s", pid, timeout)
}
