package daemon

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// stageEnv carries the re-exec stage between the detaching processes.
const stageEnv = "SIELD_DAEMON_STAGE"

const (
	stageForeground = ""
	stageSession    = "session"
	stageDetached   = "detached"
)

// Daemonize detaches the process from its terminal. Go cannot fork, so the
// classic double fork is done by re-executing the binary twice: the first
// child starts a new session, the second is not a session leader and so can
// never acquire a controlling terminal. The calling process exits in the two
// intermediate stages; Daemonize returns only in the final one. By then
// inherited descriptors above stderr are closed, the standard streams point
// at /dev/null, the umask is cleared and the working directory is /.
func Daemonize() error {
	switch os.Getenv(stageEnv) {
	case stageForeground:
		if err := reexec(stageSession, true); err != nil {
			return err
		}
		os.Exit(0)
	case stageSession:
		if err := reexec(stageDetached, false); err != nil {
			return err
		}
		os.Exit(0)
	}
	return detachedSetup()
}

func reexec(stage string, newSession bool) error {
	// Descriptors inherited without FD_CLOEXEC would otherwise survive
	// both re-execs; marking them here closes them in the child.
	if err := closeInheritedOnExec(); err != nil {
		return err
	}
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	defer null.Close()

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), stageEnv+"="+stage)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = null, null, null
	cmd.Dir = "/"
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: newSession}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("detach (%s): %w", stage, err)
	}
	return cmd.Process.Release()
}

func detachedSetup() error {
	_ = os.Unsetenv(stageEnv)
	unix.Umask(0)
	if err := os.Chdir("/"); err != nil {
		return fmt.Errorf("chdir /: %w", err)
	}
	return nil
}

// closeInheritedOnExec sets FD_CLOEXEC on every descriptor above stderr.
// Kernels without close_range(2) are handled by walking /proc/self/fd.
func closeInheritedOnExec() error {
	err := unix.CloseRange(3, ^uint(0), unix.CLOSE_RANGE_CLOEXEC)
	if err == nil {
		return nil
	}
	if !errors.Is(err, unix.ENOSYS) && !errors.Is(err, unix.EINVAL) {
		return fmt.Errorf("close_range: %w", err)
	}
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		return fmt.Errorf("list descriptors: %w", err)
	}
	for _, e := range entries {
		if fd, err := strconv.Atoi(e.Name()); err == nil && fd > 2 {
			unix.CloseOnExec(fd)
		}
	}
	return nil
}

// ExitCode maps a terminating signal onto the shell convention 128+n.
func ExitCode(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return 128 + int(s)
	}
	return 1
}
