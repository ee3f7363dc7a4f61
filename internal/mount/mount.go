// Package mount performs mounts and unmounts, picks mount points, and waits
// for a mounted device to go away.
package mount

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/sys/unix"
	"golang.org/x/text/unicode/norm"

	"sield/internal/config"
	"sield/internal/device"
)

// Record describes one established mount.
type Record struct {
	DevNode    string
	MountPoint string
	ReadOnly   bool
	// CreatedDir is set when the mount point directory was made for this mount.
	CreatedDir bool
}

// Mounter performs the mount and unmount system calls.
type Mounter interface {
	Mount(source, target, fstype string, readOnly bool) error
	Unmount(target string, detach bool) error
}

// SyscallMounter is the Mounter backed by mount(2) and umount2(2).
type SyscallMounter struct{}

// Mount mounts source at target. Device and setuid files are never honoured.
func (SyscallMounter) Mount(source, target, fstype string, readOnly bool) error {
	flags := uintptr(unix.MS_NOSUID | unix.MS_NODEV)
	if readOnly {
		flags |= unix.MS_RDONLY
	}
	if err := unix.Mount(source, target, fstype, flags, ""); err != nil {
		return fmt.Errorf("mount %s on %s (%s): %w", source, target, fstype, err)
	}
	return nil
}

// Unmount unmounts target, lazily when detach is set.
func (SyscallMounter) Unmount(target string, detach bool) error {
	flags := 0
	if detach {
		flags = unix.MNT_DETACH
	}
	if err := unix.Unmount(target, flags); err != nil {
		return fmt.Errorf("unmount %s: %w", target, err)
	}
	return nil
}

// PointFor picks the final mount point: the configured override, else a
// directory under mount_root named after the filesystem label, else the
// fallback path.
func PointFor(cfg *config.Config, dev device.Device) string {
	if cfg.Mount.MountPoint != "" {
		return cfg.Mount.MountPoint
	}
	if label := sanitizeLabel(dev.FSLabel); label != "" {
		return filepath.Join(cfg.Mount.MountRoot, label)
	}
	return cfg.Mount.FallbackMountPoint
}

// ScanPointFor returns the transient mount point used while scanning.
func ScanPointFor(cfg *config.Config, dev device.Device) string {
	return filepath.Join(cfg.Daemon.StateDir, "scan", filepath.Base(dev.DevNode))
}

func sanitizeLabel(label string) string {
	label = norm.NFC.String(strings.TrimSpace(label))
	label = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '_'
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, label)
	label = strings.TrimSpace(label)
	if label == "." || label == ".." {
		return ""
	}
	return label
}

// EnsureDir creates dir if needed and reports whether it did.
func EnsureDir(dir string) (bool, error) {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return false, fmt.Errorf("mount point %s exists and is not a directory", dir)
		}
		return false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("stat mount point: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return false, fmt.Errorf("create mount point: %w", err)
	}
	return true, nil
}

// RemoveDir removes a mount point directory this package created. Only an
// empty directory is removed, so a still-mounted tree is never touched.
func RemoveDir(dir string) error {
	if err := os.Remove(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove mount point: %w", err)
	}
	return nil
}
