// Package share republishes a mounted device through the local Samba
// service. The service configuration is a singleton: the original file is
// moved aside before rewriting and moved back on restore, and only one
// device can hold the share at a time.
package share

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"sield/internal/config"
	"sield/internal/fileutil"
	"sield/internal/logging"
)

var (
	// ErrBusy reports that another device already holds the share.
	ErrBusy = errors.New("share already in use by another device")
	// ErrNoBackup reports a restore with nothing to restore.
	ErrNoBackup = errors.New("no share configuration backup")
)

// Request describes what to publish.
type Request struct {
	MountPoint string
	Name       string
}

// Sharer publishes and withdraws a mount.
type Sharer interface {
	Share(ctx context.Context, req Request) error
	Restore(ctx context.Context) error
	Pending() bool
}

// SambaSharer rewrites smb.conf and asks the Samba daemons to reload.
type SambaSharer struct {
	configFile string
	backupFile string
	settings   settings
	services   []string
	reloader   serviceReloader
	fileLock   *flock.Flock
	logger     *slog.Logger

	mu     sync.Mutex
	active string
}

// NewSambaSharer builds a sharer from configuration.
func NewSambaSharer(cfg *config.Config, logger *slog.Logger) *SambaSharer {
	component := logging.NewComponentLogger(logger, "share")
	return &SambaSharer{
		configFile: cfg.Share.ConfigFile,
		backupFile: cfg.Share.BackupFile,
		settings: settings{
			Workgroup:  cfg.Share.Workgroup,
			HostsAllow: cfg.Share.HostsAllow,
			LogFile:    cfg.Share.LogFile,
			ReadOnly:   cfg.ShareReadOnly(),
		},
		services: append([]string(nil), cfg.Share.Services...),
		reloader: newSignalReloader(cfg.Share.PIDDir, component),
		fileLock: flock.New(cfg.Share.LockFile),
		logger:   component,
	}
}

func (s *SambaSharer) lockFile(ctx context.Context) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	locked, err := s.fileLock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("lock share config: %w", err)
	}
	if !locked {
		return nil, errors.New("lock share config: timed out")
	}
	return func() { _ = s.fileLock.Unlock() }, nil
}

// Share backs up the current configuration, writes one exporting
// req.MountPoint, and reloads the services. On any failure the original
// configuration is put back.
func (s *SambaSharer) Share(ctx context.Context, req Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != "" {
		return fmt.Errorf("%w (%s)", ErrBusy, s.active)
	}
	unlock, err := s.lockFile(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if fileutil.Exists(s.backupFile) {
		// A backup left by an interrupted run is the real original; keep it.
		s.logger.Info("reusing existing share configuration backup",
			logging.String("backup", s.backupFile),
		)
	} else if err := os.Rename(s.configFile, s.backupFile); err != nil {
		return fmt.Errorf("back up %s: %w", s.configFile, err)
	}

	body := render(s.settings, req)
	if err := fileutil.WriteFileAtomic(s.configFile, []byte(body), 0o644); err != nil {
		return errors.Join(fmt.Errorf("write share config: %w", err), s.restoreLocked(ctx))
	}
	if err := s.reloadAll(ctx); err != nil {
		return errors.Join(err, s.restoreLocked(ctx))
	}

	s.active = req.MountPoint
	s.logger.Info("device shared",
		logging.String(logging.FieldEventType, "share_enabled"),
		logging.String("mount_point", req.MountPoint),
		logging.String("share", shareName(req.Name)),
	)
	return nil
}

// Restore moves the backup back into place. With no backup it logs and
// returns nil. The share is released even when the restore fails; the
// leftover backup is then reported by Pending so a later call can retry.
func (s *SambaSharer) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = ""
	unlock, err := s.lockFile(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	return s.restoreLocked(ctx)
}

func (s *SambaSharer) restoreLocked(ctx context.Context) error {
	if err := os.Rename(s.backupFile, s.configFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("no share configuration backup to restore",
				logging.String("backup", s.backupFile),
			)
			s.active = ""
			return nil
		}
		return fmt.Errorf("restore %s: %w", s.configFile, err)
	}
	s.active = ""
	if err := s.reloadAll(ctx); err != nil {
		logging.WarnWithContext(s.logger, "share services did not reload after restore", "share_reload_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "reload samba manually"),
			logging.String(logging.FieldImpact, "the previous share may stay visible until samba reloads"),
		)
	}
	s.logger.Info("share configuration restored",
		logging.String(logging.FieldEventType, "share_restored"),
		logging.String("config", s.configFile),
	)
	return nil
}

// Pending reports whether a backup is waiting to be restored while no
// device holds the share, as after a failed Restore.
func (s *SambaSharer) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active == "" && fileutil.Exists(s.backupFile)
}

func (s *SambaSharer) reloadAll(ctx context.Context) error {
	var errs []error
	reloaded := 0
	for _, svc := range s.services {
		if err := s.reloader.Reload(ctx, svc); err != nil {
			errs = append(errs, err)
			continue
		}
		reloaded++
	}
	if reloaded == 0 && len(s.services) > 0 {
		return fmt.Errorf("reload share services: %w", errors.Join(errs...))
	}
	for _, err := range errs {
		s.logger.Debug("optional share service not reloaded", logging.Error(err))
	}
	return nil
}

type settings struct {
	Workgroup  string
	HostsAllow string
	LogFile    string
	ReadOnly   bool
}

func render(st settings, req Request) string {
	var b strings.Builder
	b.WriteString("# Generated by sield while a USB device is shared.\n")
	b.WriteString("# The original configuration is restored on removal.\n\n")
	b.WriteString("[global]\n")
	fmt.Fprintf(&b, "   workgroup = %s\n", st.Workgroup)
	b.WriteString("   server string = USB Share\n")
	fmt.Fprintf(&b, "   hosts allow = %s\n", st.HostsAllow)
	fmt.Fprintf(&b, "   log file = %s\n", st.LogFile)
	b.WriteString("   max log size = 1000\n")
	b.WriteString("   map to guest = Bad User\n\n")
	fmt.Fprintf(&b, "[%s]\n", shareName(req.Name))
	fmt.Fprintf(&b, "   path = %s\n", req.MountPoint)
	b.WriteString("   browseable = yes\n")
	b.WriteString("   guest ok = yes\n")
	fmt.Fprintf(&b, "   read only = %s\n", yesNo(st.ReadOnly))
	return b.String()
}

func shareName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', '\n', '\r':
			return -1
		}
		return r
	}, strings.TrimSpace(name))
	if name == "" {
		return "USB"
	}
	return name
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
