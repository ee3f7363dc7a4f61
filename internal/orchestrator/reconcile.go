package orchestrator

import (
	"context"
	"fmt"

	"sield/internal/device"
	"sield/internal/logging"
)

// Reconcile decides what to do with a device that was already attached when
// the daemon started. It reports whether the device should go through Run.
// A device that is already mounted is unmounted first when remount_existing
// is on, and skipped otherwise.
func (o *Orchestrator) Reconcile(ctx context.Context, dev device.Device) (bool, error) {
	if !o.Eligible(dev) {
		return false, nil
	}
	points, err := o.deps.Table.MountPoints(dev.DevNode)
	if err != nil {
		return false, fmt.Errorf("read mount table: %w", err)
	}
	if len(points) == 0 {
		return true, nil
	}
	logger := o.logger.With(logging.String(logging.FieldDevice, dev.DevNode))
	if !o.cfg.RemountExisting() {
		logger.Info("device already mounted; leaving it alone",
			logging.Args(logging.DecisionAttrs("reconcile", "skip", "remount_existing is off")...)...,
		)
		return false, nil
	}
	for _, p := range points {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if err := o.deps.Mounter.Unmount(p, false); err != nil {
			return false, fmt.Errorf("unmount existing %s: %w", p, err)
		}
		logger.Info("unmounted existing mount for re-authentication", logging.String("mount_point", p))
	}
	return true, nil
}
