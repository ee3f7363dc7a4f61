package daemon

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/shirou/gopsutil/v3/process"
)

// ErrAlreadyRunning reports a live daemon holding the PID file.
var ErrAlreadyRunning = errors.New("sield daemon already running")

// PIDFile is the single-instance guard. The file holds the daemon pid and is
// flock'd for the life of the process.
type PIDFile struct {
	path string
	lock *flock.Flock
	once sync.Once
}

// AcquirePIDFile claims path for this process. The running daemon holds an
// exclusive lock on the file. A file that can be locked is still refused
// while the pid it records belongs to a live process other than this one;
// otherwise it is stale and overwritten.
func AcquirePIDFile(path string) (*PIDFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("pid file directory: %w", err)
	}
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock pid file: %w", err)
	}
	if !locked {
		pid, _ := ReadPID(path)
		return nil, fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
	}
	if pid, alive, err := Running(path); err == nil && alive && pid != os.Getpid() {
		_ = lock.Unlock()
		return nil, fmt.Errorf("%w (pid %d, unlocked pid file)", ErrAlreadyRunning, pid)
	}

	value := strconv.Itoa(os.Getpid()) + "\n"
	if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("write pid file: %w", err)
	}
	return &PIDFile{path: path, lock: lock}, nil
}

// Path returns the PID file location.
func (p *PIDFile) Path() string { return p.path }

// Release removes the file and drops the lock. Safe to call more than once.
func (p *PIDFile) Release() error {
	var err error
	p.once.Do(func() {
		if rmErr := os.Remove(p.path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			err = fmt.Errorf("remove pid file: %w", rmErr)
		}
		if unErr := p.lock.Unlock(); unErr != nil {
			err = errors.Join(err, fmt.Errorf("unlock pid file: %w", unErr))
		}
	})
	return err
}

// ReadPID parses the pid stored at path.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid file %s", path)
	}
	return pid, nil
}

// Running reports the pid recorded at path and whether that process exists.
func Running(path string) (int, bool, error) {
	pid, err := ReadPID(path)
	if err != nil {
		return 0, false, err
	}
	alive, err := process.PidExists(int32(pid))
	if err != nil {
		return pid, false, fmt.Errorf("check pid %d: %w", pid, err)
	}
	return pid, alive, nil
}
