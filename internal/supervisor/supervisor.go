// Package supervisor turns hotplug events into device runs. Each eligible
// device gets its own worker from a bounded pool, at most one per device
// node, and shutdown waits for every worker to return.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/panjf2000/ants/v2"

	"sield/internal/device"
	"sield/internal/hotplug"
	"sield/internal/logging"
	"sield/internal/orchestrator"
	"sield/internal/share"
)

// DefaultDrainTimeout bounds how long shutdown waits for workers.
const DefaultDrainTimeout = 15 * time.Second

// Runner is the per-device state machine.
type Runner interface {
	Eligible(dev device.Device) bool
	Reconcile(ctx context.Context, dev device.Device) (bool, error)
	Run(ctx context.Context, dev device.Device) orchestrator.Result
}

// Switch reports the daemon enable flag.
type Switch interface {
	Enabled() bool
	Changes() <-chan bool
}

// Options configure a Supervisor. Switch, Sharer and OnToggle are optional.
type Options struct {
	Workers      int
	DrainTimeout time.Duration
	Switch       Switch
	Sharer       share.Sharer
	OnToggle     func(ctx context.Context, enabled bool)
	Logger       *slog.Logger
}

// Supervisor owns the dispatch loop.
type Supervisor struct {
	source hotplug.Source
	runner Runner
	opts   Options
	pool   *ants.Pool
	active cmap.ConcurrentMap[string, time.Time]
	wg     sync.WaitGroup
	logger *slog.Logger
}

// New creates a supervisor with a worker pool of opts.Workers.
func New(source hotplug.Source, runner Runner, opts Options) (*Supervisor, error) {
	if opts.Workers <= 0 {
		opts.Workers = 16
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultDrainTimeout
	}
	logger := logging.NewComponentLogger(opts.Logger, "supervisor")
	pool, err := ants.NewPool(opts.Workers,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p any) {
			logging.ErrorWithContext(logger, "device worker panicked", "worker_panic",
				logging.String("panic", fmt.Sprint(p)),
			)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Supervisor{
		source: source,
		runner: runner,
		opts:   opts,
		pool:   pool,
		active: cmap.New[time.Time](),
		logger: logger,
	}, nil
}

// Active returns the device nodes currently being handled, sorted.
func (s *Supervisor) Active() []string {
	keys := s.active.Keys()
	sort.Strings(keys)
	return keys
}

func (s *Supervisor) enabled() bool {
	return s.opts.Switch == nil || s.opts.Switch.Enabled()
}

// Run subscribes to hotplug events, handles devices already attached, and
// dispatches until ctx ends. It returns after all workers have exited or the
// drain timeout passes. A failure to subscribe is returned immediately.
func (s *Supervisor) Run(ctx context.Context) error {
	events, err := s.source.Events(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to hotplug events: %w", err)
	}
	defer s.drain()

	if s.enabled() {
		s.reconcile(ctx)
	} else {
		s.logger.Info("daemon disabled; ignoring devices until re-enabled")
	}

	var changes <-chan bool
	if s.opts.Switch != nil {
		changes = s.opts.Switch.Changes()
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case enabled := <-changes:
			if s.opts.OnToggle != nil {
				s.opts.OnToggle(ctx, enabled)
			}
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("hotplug event stream closed")
			}
			s.handle(ctx, ev)
		}
	}
}

func (s *Supervisor) handle(ctx context.Context, ev device.Event) {
	switch ev.Action {
	case device.ActionRemove:
		s.retryPendingRestore(ctx)
	case device.ActionAdd:
		if !s.runner.Eligible(ev.Device) {
			s.logger.Debug("ignoring device",
				logging.String(logging.FieldDevice, ev.Device.DevNode),
				logging.String("devtype", ev.Device.DevType),
			)
			return
		}
		if !s.enabled() {
			s.logger.Info("daemon disabled; device ignored",
				logging.String(logging.FieldDevice, ev.Device.DevNode),
			)
			return
		}
		s.dispatch(ctx, ev.Device)
	}
}

func (s *Supervisor) reconcile(ctx context.Context) {
	devices, err := s.source.Existing(ctx)
	if err != nil {
		logging.WarnWithContext(s.logger, "could not enumerate attached devices", "reconcile_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "devices attached before startup are not handled"),
		)
		return
	}
	for _, dev := range devices {
		if !s.runner.Eligible(dev) {
			continue
		}
		process, err := s.runner.Reconcile(ctx, dev)
		if err != nil {
			logging.WarnWithContext(s.logger, "could not reconcile attached device", "reconcile_failed",
				logging.String(logging.FieldDevice, dev.DevNode),
				logging.Error(err),
			)
			continue
		}
		if process {
			s.dispatch(ctx, dev)
		}
	}
}

// dispatch starts a worker for dev unless one is already running for the
// same device node.
func (s *Supervisor) dispatch(ctx context.Context, dev device.Device) {
	key := dev.Key()
	if !s.active.SetIfAbsent(key, time.Now()) {
		s.logger.Debug("device already being handled", logging.String(logging.FieldDevice, key))
		return
	}
	s.wg.Add(1)
	err := s.pool.Submit(func() {
		defer s.wg.Done()
		defer s.active.Remove(key)
		res := s.runner.Run(ctx, dev)
		s.logger.Debug("device worker finished",
			logging.String(logging.FieldDevice, key),
			logging.String(logging.FieldState, res.State.String()),
		)
	})
	if err != nil {
		s.wg.Done()
		s.active.Remove(key)
		logging.WarnWithContext(s.logger, "device not handled", "dispatch_rejected",
			logging.String(logging.FieldDevice, key),
			logging.Error(err),
			logging.Int("workers", s.opts.Workers),
			logging.String(logging.FieldErrorHint, "raise daemon.max_concurrent_devices"),
		)
	}
}

func (s *Supervisor) retryPendingRestore(ctx context.Context) {
	if s.opts.Sharer == nil || !s.opts.Sharer.Pending() {
		return
	}
	if err := s.opts.Sharer.Restore(ctx); err != nil {
		logging.WarnWithContext(s.logger, "pending share restore failed", "share_restore_failed",
			logging.Error(err),
		)
	}
}

// drain waits for workers and releases the pool.
func (s *Supervisor) drain() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.opts.DrainTimeout):
		logging.WarnWithContext(s.logger, "device workers still running at shutdown", "drain_timeout",
			logging.Any("devices", s.Active()),
			logging.Duration("timeout", s.opts.DrainTimeout),
		)
	}
	s.pool.Release()
}
