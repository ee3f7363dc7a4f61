package share

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"sield/internal/logging"
)

type serviceReloader interface {
	Reload(ctx context.Context, service string) error
}

// signalReloader sends SIGHUP to the pid recorded in <pidDir>/<service>.pid
// and falls back to restarting the service through systemctl.
type signalReloader struct {
	pidDir  string
	restart func(ctx context.Context, service string) error
	logger  *slog.Logger
}

func newSignalReloader(pidDir string, logger *slog.Logger) *signalReloader {
	return &signalReloader{pidDir: pidDir, restart: systemctlRestart, logger: logger}
}

func (r *signalReloader) Reload(ctx context.Context, service string) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(backoff.WithInitialInterval(200*time.Millisecond)), 2),
		ctx,
	)
	return backoff.Retry(func() error {
		if err := r.hangup(service); err == nil {
			return nil
		}
		if err := r.restart(ctx, service); err != nil {
			r.logger.Debug("service restart attempt failed",
				logging.String("service", service),
				logging.Error(err),
			)
			return err
		}
		return nil
	}, policy)
}

func (r *signalReloader) hangup(service string) error {
	data, err := os.ReadFile(filepath.Join(r.pidDir, service+".pid"))
	if err != nil {
		return err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return fmt.Errorf("invalid pid file for %s", service)
	}
	return syscall.Kill(pid, syscall.SIGHUP)
}

func systemctlRestart(ctx context.Context, service string) error {
	out, err := exec.CommandContext(ctx, "systemctl", "restart", service).CombinedOutput()
	if err != nil {
		return fmt.Errorf("restart %s: %w: %s", service, err, strings.TrimSpace(string(out)))
	}
	return nil
}
