// Package orchestrator runs the per-device state machine: authenticate,
// optionally scan through a transient read-only mount, mount, optionally
// share, then wait for removal and undo what was done. Every adapter
// failure downgrades policy or ends the run; nothing here panics on an
// adapter error.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"sield/internal/auth"
	"sield/internal/config"
	"sield/internal/device"
	"sield/internal/history"
	"sield/internal/logging"
	"sield/internal/mount"
	"sield/internal/scan"
	"sield/internal/share"
)

// RemovalWatcher blocks until a mount disappears.
type RemovalWatcher interface {
	WaitRemoved(ctx context.Context, devnode, mountPoint string) error
}

// HistoryRecorder persists run progress.
type HistoryRecorder interface {
	Begin(ctx context.Context, run *history.Run) error
	Update(ctx context.Context, run *history.Run) error
	Finish(ctx context.Context, run *history.Run, state string) error
}

// MetricsSink receives outcome counters.
type MetricsSink interface {
	DeviceStarted()
	DeviceFinished(state string)
	AuthOutcome(outcome string)
	ScanVerdict(verdict string)
	AdapterFailed(adapter string)
	Mounted(delta int)
	Shared(delta int)
	Flush() error
}

// Deps are the adapters a run drives. Sharer, History and Metrics may be nil.
type Deps struct {
	Auth    auth.FrontEnd
	Scanner scan.Scanner
	Mounter mount.Mounter
	Table   mount.Table
	Removal RemovalWatcher
	Sharer  share.Sharer
	History HistoryRecorder
	Metrics MetricsSink
}

// Orchestrator runs device lifecycles. It is safe for concurrent use; each
// Run owns its device exclusively.
type Orchestrator struct {
	cfg    *config.Config
	deps   Deps
	newID  func() string
	logger *slog.Logger
}

// New builds an orchestrator.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) *Orchestrator {
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		newID:  uuid.NewString,
		logger: logging.NewComponentLogger(logger, "orchestrator"),
	}
}

// Result summarizes one run.
type Result struct {
	RunID       string
	State       State
	Transitions []State
	Auth        auth.Outcome
	Verdict     *scan.Verdict
	Mount       *mount.Record
	Shared      bool
	Err         error
}

// Eligible reports whether dev is a USB device of the configured mountable type.
func (o *Orchestrator) Eligible(dev device.Device) bool {
	return dev.Mountable(o.cfg.Mount.MountableType)
}

// run is the mutable state of one pass through the machine.
type run struct {
	o      *Orchestrator
	ctx    context.Context
	dev    device.Device
	logger *slog.Logger
	record *history.Run
	result Result
}

// Run drives dev through the state machine and returns once it reaches a
// terminal state or ctx ends. Ineligible devices return immediately with
// an empty Result.
func (o *Orchestrator) Run(ctx context.Context, dev device.Device) Result {
	if !o.Eligible(dev) {
		o.logger.Debug("ignoring non-usb or non-mountable device",
			logging.String(logging.FieldDevice, dev.DevNode),
			logging.String("devtype", dev.DevType),
			logging.Bool("usb", dev.USBParent),
		)
		return Result{}
	}

	id := o.newID()
	ctx = logging.WithRunID(logging.WithDevice(ctx, dev.DevNode), id)
	r := &run{
		o:      o,
		ctx:    ctx,
		dev:    dev,
		logger: logging.WithContext(ctx, o.logger),
		record: &history.Run{
			ID:           id,
			DevNode:      dev.DevNode,
			Manufacturer: dev.Manufacturer,
			Product:      dev.Product,
			Serial:       dev.Serial,
			State:        StateDetected.String(),
		},
		result: Result{RunID: id, State: StateDetected, Transitions: []State{StateDetected}},
	}
	r.logger.Info("usb storage detected", logging.Args(dev.LogAttrs()...)...)
	o.deps.Metrics.DeviceStarted()
	if o.deps.History != nil {
		if err := o.deps.History.Begin(context.WithoutCancel(ctx), r.record); err != nil {
			r.logger.Debug("history begin failed", logging.Error(err))
		}
	}

	r.execute()
	r.finish()
	return r.result
}

func (r *run) execute() {
	if !r.authenticate() {
		return
	}
	readOnly := r.o.cfg.MountReadOnly()
	if r.o.cfg.ScanEnabled() {
		forceReadOnly, proceed := r.scan()
		if !proceed {
			return
		}
		readOnly = readOnly || forceReadOnly
	}
	if !r.mountFinal(readOnly) {
		return
	}
	if r.o.cfg.ShareEnabled() && r.o.deps.Sharer != nil {
		r.share()
	}
	r.watchRemoval()
}

func (r *run) transition(state State, attrs ...logging.Attr) {
	from := r.result.State
	r.result.State = state
	r.result.Transitions = append(r.result.Transitions, state)
	r.record.State = state.String()
	attrs = append(attrs,
		logging.String(logging.FieldState, state.String()),
		logging.String("from", from.String()),
	)
	r.logger.Info("device state changed", logging.Args(attrs...)...)
	if r.o.deps.History != nil && !state.Terminal() {
		if err := r.o.deps.History.Update(context.WithoutCancel(r.ctx), r.record); err != nil {
			r.logger.Debug("history update failed", logging.Error(err))
		}
	}
}

func (r *run) fail(adapter string, err error) {
	r.result.Err = err
	r.record.Error = err.Error()
	r.o.deps.Metrics.AdapterFailed(adapter)
	logging.ErrorWithContext(r.logger, "device run aborted", "device_failed",
		logging.String("adapter", adapter),
		logging.Error(err),
		logging.String(logging.FieldImpact, "device left unmounted"),
	)
	r.transition(StateFailed)
}

func (r *run) finish() {
	state := r.result.State.String()
	r.o.deps.Metrics.DeviceFinished(state)
	if err := r.o.deps.Metrics.Flush(); err != nil {
		r.logger.Debug("metrics flush failed", logging.Error(err))
	}
	if r.o.deps.History != nil {
		if err := r.o.deps.History.Finish(context.WithoutCancel(r.ctx), r.record, state); err != nil {
			r.logger.Debug("history finish failed", logging.Error(err))
		}
	}
}

func (r *run) authenticate() bool {
	r.transition(StateAuthPending, logging.String("frontend", r.o.deps.Auth.Name()))
	out := r.o.deps.Auth.Authenticate(r.ctx, r.dev)
	r.result.Auth = out
	r.record.AuthState = out.State.String()
	r.record.AuthAttempts = out.Attempts
	r.o.deps.Metrics.AuthOutcome(out.State.String())
	if !out.Granted() {
		if out.Reason != "" {
			r.record.Error = out.Reason
		}
		r.transition(StateAuthDenied,
			logging.Int("attempts", out.Attempts),
			logging.String("reason", out.Reason),
		)
		return false
	}
	r.transition(StateAuthGranted, logging.Int("attempts", out.Attempts))
	return true
}

// scan mounts the device read-only at a private point, scans it, and always
// unmounts it again. It reports whether the final mount must be read-only and
// whether the run continues.
func (r *run) scan() (forceReadOnly, proceed bool) {
	r.transition(StateScanPending)
	point := mount.ScanPointFor(r.o.cfg, r.dev)
	created, err := mount.EnsureDir(point)
	if err != nil {
		r.fail("scan_mount", err)
		return false, false
	}
	if err := r.o.deps.Mounter.Mount(r.dev.DevNode, point, r.dev.FSType, true); err != nil {
		r.removeDir(point, created)
		r.fail("scan_mount", err)
		return false, false
	}

	verdict, scanErr := r.o.deps.Scanner.Scan(r.ctx, point)

	if err := r.unmount(point); err != nil {
		r.fail("scan_unmount", err)
		return false, false
	}
	r.removeDir(point, created)

	if err := r.ctx.Err(); err != nil {
		r.fail("scan", fmt.Errorf("scan interrupted: %w", err))
		return false, false
	}

	r.result.Verdict = &verdict
	r.record.ScanVerdict = verdict.String()
	r.o.deps.Metrics.ScanVerdict(verdict.String())
	switch verdict {
	case scan.VerdictClean:
		r.transition(StateScanClean)
		return false, true
	case scan.VerdictInfected:
		logging.WarnWithContext(r.logger, "malware found; device will not be mounted", "scan_infected",
			logging.String(logging.FieldErrorHint, "see "+r.o.cfg.Scan.LogFile),
		)
		r.transition(StateScanInfected)
		return false, false
	default:
		r.o.deps.Metrics.AdapterFailed("scan")
		logging.WarnWithContext(r.logger, "scanner failed; forcing read-only mount", "scan_error",
			logging.Error(scanErr),
			logging.String(logging.FieldImpact, "device mounted read-only"),
		)
		r.transition(StateScanError)
		return true, true
	}
}

// unmount tries a normal unmount, then a lazy detach.
func (r *run) unmount(point string) error {
	err := r.o.deps.Mounter.Unmount(point, false)
	if err == nil {
		return nil
	}
	r.logger.Warn("unmount failed; detaching", logging.String("mount_point", point), logging.Error(err))
	if derr := r.o.deps.Mounter.Unmount(point, true); derr != nil {
		return errors.Join(err, derr)
	}
	return nil
}

func (r *run) removeDir(dir string, created bool) {
	if !created {
		return
	}
	if err := mount.RemoveDir(dir); err != nil {
		r.logger.Debug("mount point not removed", logging.String("mount_point", dir), logging.Error(err))
	}
}

func (r *run) mountFinal(readOnly bool) bool {
	point := mount.PointFor(r.o.cfg, r.dev)
	created, err := mount.EnsureDir(point)
	if err != nil {
		r.fail("mount", err)
		return false
	}
	if err := r.o.deps.Mounter.Mount(r.dev.DevNode, point, r.dev.FSType, readOnly); err != nil {
		r.removeDir(point, created)
		r.fail("mount", err)
		return false
	}
	rec := &mount.Record{DevNode: r.dev.DevNode, MountPoint: point, ReadOnly: readOnly, CreatedDir: created}
	r.result.Mount = rec
	r.record.MountPoint = point
	r.o.deps.Metrics.Mounted(1)
	r.transition(StateMounted,
		logging.String("mount_point", point),
		logging.Bool("read_only", readOnly),
	)
	return true
}

func (r *run) share() {
	r.transition(StateSharePending)
	err := r.o.deps.Sharer.Share(r.ctx, share.Request{
		MountPoint: r.result.Mount.MountPoint,
		Name:       r.dev.DisplayName(),
	})
	if err != nil {
		r.o.deps.Metrics.AdapterFailed("share")
		logging.WarnWithContext(r.logger, "sharing failed; device stays mounted", "share_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "device is mounted locally only"),
		)
		r.transition(StateMounted, logging.String("mount_point", r.result.Mount.MountPoint))
		return
	}
	r.result.Shared = true
	r.record.Shared = true
	r.o.deps.Metrics.Shared(1)
	r.transition(StateShared)
}

func (r *run) watchRemoval() {
	rec := r.result.Mount
	r.transition(StateWatchRemoval)
	err := r.o.deps.Removal.WaitRemoved(r.ctx, rec.DevNode, rec.MountPoint)
	if err != nil {
		if r.ctx.Err() != nil {
			// Shutdown leaves the mount in place; the share is restored by
			// daemon cleanup.
			r.record.Error = "daemon shutdown"
			r.logger.Info("stopped watching device for removal", logging.String("mount_point", rec.MountPoint))
			return
		}
		r.fail("removal_watch", err)
		return
	}

	r.unshare()
	r.o.deps.Metrics.Mounted(-1)
	r.removeDir(rec.MountPoint, rec.CreatedDir)
	r.transition(StateUnmounted, logging.String("mount_point", rec.MountPoint))
}

func (r *run) unshare() {
	if !r.result.Shared {
		return
	}
	if err := r.o.deps.Sharer.Restore(context.WithoutCancel(r.ctx)); err != nil {
		logging.WarnWithContext(r.logger, "share configuration not restored", "share_restore_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "restore is retried on the next device removal"),
		)
		return
	}
	r.result.Shared = false
	r.o.deps.Metrics.Shared(-1)
}

type nopMetrics struct{}

func (nopMetrics) DeviceStarted()        {}
func (nopMetrics) DeviceFinished(string) {}
func (nopMetrics) AuthOutcome(string)    {}
func (nopMetrics) ScanVerdict(string)    {}
func (nopMetrics) AdapterFailed(string)  {}
func (nopMetrics) Mounted(int)           {}
func (nopMetrics) Shared(int)            {}
func (nopMetrics) Flush() error          { return nil }
