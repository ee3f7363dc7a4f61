package mount

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/disk"
)

// Table answers questions about the live mounts view.
type Table interface {
	// MountPoints lists where devnode is mounted.
	MountPoints(devnode string) ([]string, error)
}

// LiveTable reads the kernel mount table through gopsutil.
type LiveTable struct{}

func (LiveTable) MountPoints(devnode string) ([]string, error) {
	parts, err := disk.Partitions(true)
	if err != nil {
		return nil, fmt.Errorf("list mounts: %w", err)
	}
	var points []string
	for _, p := range parts {
		if p.Device == devnode {
			points = append(points, p.Mountpoint)
		}
	}
	return points, nil
}

// IsMountedAt reports whether devnode is mounted at mountPoint.
func IsMountedAt(t Table, devnode, mountPoint string) (bool, error) {
	points, err := t.MountPoints(devnode)
	if err != nil {
		return false, err
	}
	for _, p := range points {
		if p == mountPoint {
			return true, nil
		}
	}
	return false, nil
}
