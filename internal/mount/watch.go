package mount

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"

	"sield/internal/logging"
)

const defaultMountsFile = "/proc/self/mounts"

// Watcher blocks until a mount disappears. The kernel flags the mounts file
// with POLLPRI whenever the table changes, so no busy polling is needed.
type Watcher struct {
	MountsFile string
	Table      Table
	Mounter    Mounter
	// PollMillis bounds one poll call so cancellation is observed.
	PollMillis int
	// DevExists reports whether the device node is still present.
	DevExists func(devnode string) bool
	Logger    *slog.Logger
}

// NewWatcher returns a watcher over the live kernel state.
func NewWatcher(table Table, mounter Mounter, logger *slog.Logger) *Watcher {
	return &Watcher{
		MountsFile: defaultMountsFile,
		Table:      table,
		Mounter:    mounter,
		PollMillis: 1000,
		DevExists:  nodeExists,
		Logger:     logging.NewComponentLogger(logger, "mount-watch"),
	}
}

func nodeExists(devnode string) bool {
	_, err := os.Stat(devnode)
	return !errors.Is(err, fs.ErrNotExist)
}

// WaitRemoved returns once devnode is no longer mounted at mountPoint. If the
// device node vanishes while the mount is still present, the mount is
// detached so the tree does not linger.
func (w *Watcher) WaitRemoved(ctx context.Context, devnode, mountPoint string) error {
	f, err := os.Open(w.MountsFile)
	if err != nil {
		return fmt.Errorf("open mounts file: %w", err)
	}
	defer f.Close()

	for {
		if _, err := f.Seek(0, io.SeekStart); err == nil {
			_, _ = io.Copy(io.Discard, f)
		}
		mounted, err := IsMountedAt(w.Table, devnode, mountPoint)
		if err != nil {
			return err
		}
		if !mounted {
			return nil
		}
		if w.DevExists != nil && !w.DevExists(devnode) {
			w.Logger.Info("device node gone while mounted; detaching",
				logging.String(logging.FieldEventType, "device_yanked"),
				logging.String(logging.FieldDevice, devnode),
				logging.String("mount_point", mountPoint),
			)
			if err := w.Mounter.Unmount(mountPoint, true); err != nil {
				return err
			}
			continue
		}

		fds := []unix.PollFd{{Fd: int32(f.Fd()), Events: unix.POLLPRI | unix.POLLERR}}
		if _, err := unix.Poll(fds, w.pollMillis()); err != nil && !errors.Is(err, unix.EINTR) {
			return fmt.Errorf("poll mounts file: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (w *Watcher) pollMillis() int {
	if w.PollMillis > 0 {
		return w.PollMillis
	}
	return 1000
}
