package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"sield/internal/fileutil"
	"sield/internal/logging"
	"sield/internal/policy"
	"sield/internal/share"
)

// Supervisor is the device dispatch loop.
type Supervisor interface {
	Run(ctx context.Context) error
}

// Options collects the host-level pieces the daemon manages. Sharer and
// Switch may be nil.
type Options struct {
	PIDFile           string
	FIFODir           string
	SuppressAutomount bool
	Rule              *policy.AutomountRule
	Switch            *policy.Switch
	Sharer            share.Sharer
	Logger            *slog.Logger
}

// Daemon ties the single-instance guard, policy switches and cleanup to the
// supervisor's lifetime.
type Daemon struct {
	opts    Options
	cleanup *Cleanup
	logger  *slog.Logger

	ruleMu sync.Mutex
}

// New constructs a daemon.
func New(opts Options) *Daemon {
	return &Daemon{
		opts:    opts,
		cleanup: NewCleanup(opts.Logger),
		logger:  logging.NewComponentLogger(opts.Logger, "daemon"),
	}
}

// Run claims the PID file, applies policy, and runs sup until ctx ends or sup
// fails. Cleanup has run by the time Run returns.
func (d *Daemon) Run(ctx context.Context, sup Supervisor) error {
	pid, err := AcquirePIDFile(d.opts.PIDFile)
	if err != nil {
		return err
	}
	d.cleanup.Add("pid file", func(context.Context) error { return pid.Release() })
	d.cleanup.Add("pipe directory", func(context.Context) error {
		_, err := fileutil.RemoveDirIfEmpty(d.opts.FIFODir)
		return err
	})
	if d.opts.Sharer != nil {
		d.cleanup.Add("share configuration", d.opts.Sharer.Restore)
	}
	if d.opts.Rule != nil {
		d.cleanup.Add("automount rule", d.opts.Rule.Remove)
	}
	defer func() { _ = d.Cleanup(context.Background()) }()

	enabled := d.opts.Switch == nil || d.opts.Switch.Enabled()
	d.ApplyEnabled(ctx, enabled)
	d.logger.Info("sield daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("pid_file", pid.Path()),
		logging.Bool("enabled", enabled),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup
	if d.opts.Switch != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.opts.Switch.Run(runCtx)
		}()
	}

	err = sup.Run(runCtx)
	cancel()
	wg.Wait()
	if err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}
	d.logger.Info("sield daemon stopping", logging.String(logging.FieldEventType, "daemon_stopping"))
	return nil
}

// ApplyEnabled installs the automount rule while the daemon is enabled and
// removes it while disabled.
func (d *Daemon) ApplyEnabled(ctx context.Context, enabled bool) {
	if d.opts.Rule == nil {
		return
	}
	d.ruleMu.Lock()
	defer d.ruleMu.Unlock()

	var err error
	if enabled && d.opts.SuppressAutomount {
		err = d.opts.Rule.Install(ctx)
	} else {
		err = d.opts.Rule.Remove(ctx)
	}
	if err != nil {
		logging.WarnWithContext(d.logger, "automount rule not updated", "automount_rule_failed",
			logging.Error(err),
			logging.String("path", d.opts.Rule.Path()),
			logging.String(logging.FieldImpact, "desktop automounters may race the daemon"),
		)
	}
}

// Cleanup restores the host state. It runs once; later calls return the
// first result.
func (d *Daemon) Cleanup(ctx context.Context) error {
	err := d.cleanup.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
