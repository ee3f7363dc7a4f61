// Package policy holds the host-wide switches the daemon applies: the udev
// rule that keeps desktop automounters away from USB block devices and the
// enable flag read from the configuration file.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"sield/internal/fileutil"
	"sield/internal/logging"
)

// RuleContent hides USB block devices from udisks-based automounters.
const RuleContent = `ACTION=="add|change", SUBSYSTEM=="block", SUBSYSTEMS=="usb", ENV{UDISKS_PRESENTATION_HIDE}="1", ENV{UDISKS_PRESENTATION_NOPOLICY}="1", ENV{UDISKS_AUTOMOUNT_HINT}="never", ENV{UDISKS_IGNORE}="1", ENV{UDISKS_AUTO}="0"
`

// AutomountRule manages the rule file. Install and Remove are idempotent.
type AutomountRule struct {
	path   string
	reload func(ctx context.Context) error
	logger *slog.Logger
}

// NewAutomountRule returns a rule manager writing to path.
func NewAutomountRule(path string, logger *slog.Logger) *AutomountRule {
	return &AutomountRule{
		path:   path,
		reload: reloadUdevRules,
		logger: logging.NewComponentLogger(logger, "policy"),
	}
}

// Path returns the rule file location.
func (r *AutomountRule) Path() string { return r.path }

// Install writes the rule file, creating its directory when missing, and
// asks udev to reload its rules.
func (r *AutomountRule) Install(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create rule directory: %w", err)
	}
	if err := fileutil.WriteFileAtomic(r.path, []byte(RuleContent), 0o644); err != nil {
		return fmt.Errorf("install automount rule: %w", err)
	}
	r.reloadRules(ctx)
	r.logger.Info("automount suppression rule installed", logging.String("path", r.path))
	return nil
}

// Remove deletes the rule file. A missing file is not an error.
func (r *AutomountRule) Remove(ctx context.Context) error {
	removed, err := fileutil.RemoveIfExists(r.path)
	if err != nil {
		return fmt.Errorf("remove automount rule: %w", err)
	}
	if removed {
		r.reloadRules(ctx)
		r.logger.Info("automount suppression rule removed", logging.String("path", r.path))
	}
	return nil
}

func (r *AutomountRule) reloadRules(ctx context.Context) {
	if r.reload == nil {
		return
	}
	if err := r.reload(ctx); err != nil {
		r.logger.Debug("udev rule reload failed", logging.Error(err))
	}
}

func reloadUdevRules(ctx context.Context) error {
	out, err := exec.CommandContext(ctx, "udevadm", "control", "--reload-rules").CombinedOutput()
	if err != nil {
		return fmt.Errorf("udevadm: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
