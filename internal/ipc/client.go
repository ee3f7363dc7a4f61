package ipc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"syscall"
)

// PendingDevice is one authentication pipe waiting for a password.
type PendingDevice struct {
	Name string
	Path string
}

// ListPending returns the pipes in dir sorted by name. A missing directory
// means nothing is pending.
func ListPending(dir string) ([]PendingDevice, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read pipe directory: %w", err)
	}
	var pending []PendingDevice
	for _, entry := range entries {
		if entry.Type()&os.ModeNamedPipe == 0 {
			continue
		}
		pending = append(pending, PendingDevice{Name: entry.Name(), Path: filepath.Join(dir, entry.Name())})
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Name < pending[j].Name })
	return pending, nil
}

// Submit delivers one request to the pipe at path. It never blocks waiting
// for a reader: a pipe nobody is reading yields ErrPipeBusy.
func Submit(path string, req AuthRequest) error {
	f, err := os.OpenFile(path, os.O_WRONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		if errors.Is(err, syscall.ENXIO) {
			return ErrPipeBusy
		}
		return fmt.Errorf("open pipe: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat pipe: %w", err)
	}
	if info.Mode()&os.ModeNamedPipe == 0 {
		return fmt.Errorf("%s is not a named pipe", path)
	}

	n, err := req.WriteTo(f)
	if err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	if int(n) != HeaderSize+req.Header().BodySize() {
		return fmt.Errorf("write request: short write (%d bytes)", n)
	}
	return nil
}
