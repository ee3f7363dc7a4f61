package policy

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"sield/internal/config"
	"sield/internal/logging"
)

// Switch tracks the daemon.enabled flag in the configuration file. Changes
// are picked up from file notifications and from a fixed poll, whichever
// comes first.
type Switch struct {
	path     string
	interval time.Duration
	read     func(path string) (bool, error)
	logger   *slog.Logger

	enabled atomic.Bool
	changes chan bool
}

// NewSwitch returns a switch seeded with the initial value.
func NewSwitch(path string, initial bool, interval time.Duration, logger *slog.Logger) *Switch {
	if interval <= 0 {
		interval = time.Second
	}
	s := &Switch{
		path:     path,
		interval: interval,
		read:     config.ReadEnabled,
		logger:   logging.NewComponentLogger(logger, "policy"),
		changes:  make(chan bool, 1),
	}
	s.enabled.Store(initial)
	return s
}

// Enabled reports the most recently observed value.
func (s *Switch) Enabled() bool { return s.enabled.Load() }

// Changes delivers the latest value after each transition. Intermediate
// values are dropped when the reader falls behind.
func (s *Switch) Changes() <-chan bool { return s.changes }

// Run watches the configuration until ctx is cancelled.
func (s *Switch) Run(ctx context.Context) error {
	var events <-chan fsnotify.Event
	var errs <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if addErr := watcher.Add(filepath.Dir(s.path)); addErr != nil {
			_ = watcher.Close()
			err = addErr
		} else {
			defer watcher.Close()
			events = watcher.Events
			errs = watcher.Errors
		}
	}
	if err != nil {
		s.logger.Debug("config notifications unavailable; polling only", logging.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Refresh()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) == filepath.Clean(s.path) {
				s.Refresh()
			}
		case werr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.logger.Debug("config watcher error", logging.Error(werr))
		}
	}
}

// Refresh rereads the flag. Read errors keep the previous value.
func (s *Switch) Refresh() {
	value, err := s.read(s.path)
	if err != nil {
		logging.WarnWithContext(s.logger, "could not read enable switch", "enable_switch_unreadable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check "+s.path),
			logging.String(logging.FieldImpact, "keeping the previous enabled state"),
		)
		return
	}
	if s.enabled.Swap(value) == value {
		return
	}
	s.logger.Info("enable switch changed",
		logging.String(logging.FieldEventType, "enable_switch"),
		logging.Bool("enabled", value),
	)
	select {
	case <-s.changes:
	default:
	}
	select {
	case s.changes <- value:
	default:
	}
}
