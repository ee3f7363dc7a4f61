// Package daemonrun assembles sieldd from its parts and runs it until a
// termination signal.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"sield/internal/auth"
	"sield/internal/config"
	"sield/internal/credential"
	"sield/internal/daemon"
	"sield/internal/deps"
	"sield/internal/history"
	"sield/internal/hotplug"
	"sield/internal/logging"
	"sield/internal/metrics"
	"sield/internal/mount"
	"sield/internal/orchestrator"
	"sield/internal/policy"
	"sield/internal/preflight"
	"sield/internal/scan"
	"sield/internal/share"
	"sield/internal/supervisor"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// ConfigPath is the resolved configuration file watched for the enable switch.
	ConfigPath string
	Foreground bool
	LogLevel   string
}

// Run starts the daemon and blocks until it stops. The returned exit status
// is 128+n after signal n, 1 after a startup failure, and 0 otherwise.
func Run(ctx context.Context, cfg *config.Config, opts Options) (int, error) {
	if cfg == nil {
		return 1, errors.New("config is required")
	}
	if !opts.Foreground {
		if err := daemon.Daemonize(); err != nil {
			return 1, fmt.Errorf("daemonize: %w", err)
		}
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return 1, fmt.Errorf("ensure directories: %w", err)
	}

	logger, err := newLogger(cfg, opts)
	if err != nil {
		return 1, fmt.Errorf("init logger: %w", err)
	}
	if _, err := logging.PruneRotated(logger, strings.TrimSpace(cfg.Logging.File), cfg.Logging.RetentionDays); err != nil {
		logger.Debug("log retention skipped", logging.Error(err))
	}
	deps.LogSnapshot(logging.NewComponentLogger(logger, "deps"), deps.CheckBinaries(deps.Requirements(cfg)))
	for _, check := range preflight.Failed(preflight.RunAll(cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", check.Name),
			logging.String("detail", check.Detail),
		)
	}

	source := hotplug.NewNetlinkSource(nil, logger)
	if err := source.Connect(); err != nil {
		logging.ErrorWithContext(logger, "hotplug source unavailable", "hotplug_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "sieldd must run as root"),
		)
		return 1, err
	}
	defer source.Close()

	store := openHistory(ctx, cfg, logger)
	if store != nil {
		defer store.Close()
	}
	recorder := metrics.New(cfg.Metrics.Textfile)

	verifier := credential.NewStore(cfg, logger)
	frontEnd := auth.Select(cfg, verifier, logger)
	sharer := share.NewSambaSharer(cfg, logger)
	mounter := mount.SyscallMounter{}
	table := mount.LiveTable{}

	odeps := orchestrator.Deps{
		Auth:    frontEnd,
		Scanner: scan.NewClamScanner(cfg, logger),
		Mounter: mounter,
		Table:   table,
		Removal: mount.NewWatcher(table, mounter, logger),
		Sharer:  sharer,
		Metrics: recorder,
	}
	if store != nil {
		odeps.History = store
	}
	orch := orchestrator.New(cfg, odeps, logger)

	sw := policy.NewSwitch(opts.ConfigPath, cfg.Enabled(), cfg.DisabledPollInterval(), logger)
	d := daemon.New(daemon.Options{
		PIDFile:           cfg.Daemon.PIDFile,
		FIFODir:           cfg.Daemon.FIFODir,
		SuppressAutomount: cfg.SuppressAutomount(),
		Rule:              policy.NewAutomountRule(cfg.Daemon.RuleFile, logger),
		Switch:            sw,
		Sharer:            sharer,
		Logger:            logger,
	})
	sup, err := supervisor.New(source, orch, supervisor.Options{
		Workers:  cfg.Daemon.MaxConcurrentDevices,
		Switch:   sw,
		Sharer:   sharer,
		OnToggle: d.ApplyEnabled,
		Logger:   logger,
	})
	if err != nil {
		return 1, err
	}

	runCtx, stop := newSignalContext(ctx)
	defer stop()

	logger.Info("sield starting",
		logging.String(logging.FieldEventType, "daemon_starting"),
		logging.String("config", opts.ConfigPath),
		logging.String("auth_frontend", frontEnd.Name()),
		logging.Bool("scan", cfg.ScanEnabled()),
		logging.Bool("share", cfg.ShareEnabled()),
		logging.Bool("read_only", cfg.MountReadOnly()),
	)
	runErr := d.Run(runCtx, sup)
	if err := recorder.Flush(); err != nil {
		logger.Debug("metrics flush failed", logging.Error(err))
	}

	if sig := stop(); sig != nil {
		logger.Info("sield stopped by signal", logging.String("signal", sig.String()))
		return daemon.ExitCode(sig), runErr
	}
	if runErr != nil {
		logging.ErrorWithContext(logger, "sield stopped with error", "daemon_failed", logging.Error(runErr))
		return 1, runErr
	}
	return 0, nil
}

func newLogger(cfg *config.Config, opts Options) (*slog.Logger, error) {
	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logOpts := logging.Options{Level: level, Format: cfg.Logging.Format, File: cfg.Logging.File}
	if opts.Foreground {
		logOpts.Console = os.Stdout
	}
	return logging.New(logOpts)
}

func openHistory(ctx context.Context, cfg *config.Config, logger *slog.Logger) *history.Store {
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		logging.WarnWithContext(logger, "run history unavailable", "history_unavailable",
			logging.Error(err),
			logging.String(logging.FieldImpact, "device runs are logged but not recorded"),
		)
		return nil
	}
	if n, err := store.MarkInterrupted(ctx); err != nil {
		logger.Debug("mark interrupted runs failed", logging.Error(err))
	} else if n > 0 {
		logger.Info("closed runs left open by previous daemon", logging.Int64("runs", n))
	}
	if days := cfg.Logging.RetentionDays; days > 0 {
		if _, err := store.Prune(ctx, time.Now().AddDate(0, 0, -days)); err != nil {
			logger.Debug("prune history failed", logging.Error(err))
		}
	}
	return store
}

// newSignalContext returns a context cancelled on SIGINT, SIGTERM or SIGQUIT.
// The stop function detaches the handler and reports the signal received,
// if any.
func newSignalContext(parent context.Context) (context.Context, func() os.Signal) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var (
		mu       sync.Mutex
		received os.Signal
	)
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-ch:
			mu.Lock()
			received = sig
			mu.Unlock()
			cancel()
		case <-done:
		}
	}()

	var once sync.Once
	stop := func() os.Signal {
		once.Do(func() {
			signal.Stop(ch)
			close(done)
			cancel()
		})
		mu.Lock()
		defer mu.Unlock()
		return received
	}
	return ctx, stop
}
