// Package testsupport builds configurations and stores for tests.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"sield/internal/config"
)

// Option adjusts a test configuration after its paths are rooted.
type Option func(t testing.TB, base string, cfg *config.Config)

// NewConfig returns the default configuration with every path it writes to
// moved under t.TempDir(). The failure delay is zeroed so auth tests run fast.
func NewConfig(t testing.TB, opts ...Option) *config.Config {
	t.Helper()
	base := t.TempDir()
	under := func(parts ...string) string {
		return filepath.Join(append([]string{base}, parts...)...)
	}

	cfg := config.Default()
	d, a, s, m, sh := &cfg.Daemon, &cfg.Auth, &cfg.Scan, &cfg.Mount, &cfg.Share
	d.PIDFile = under("run", "sield.pid")
	d.FIFODir = under("sld")
	d.RuleFile = under("rules.d", "999-sield.rules")
	d.StateDir = under("state")
	a.PasswordFile = under("sield.passwd")
	a.FailDelayMS = 0
	s.LogFile = under("log", "av.log")
	m.MountRoot = under("mnt")
	m.FallbackMountPoint = under("mnt", "sield_usb")
	sh.ConfigFile = under("samba", "smb.conf")
	sh.BackupFile = under("samba", "smb.conf.bak")
	sh.LockFile = under("run", "share.lock")
	sh.PIDDir = under("run")
	cfg.Logging.File = under("log", "sield.log")
	cfg.Metrics.Textfile = under("metrics", "sield.prom")

	for _, opt := range opts {
		opt(t, base, &cfg)
	}
	return &cfg
}

// WithStubbedBinaries puts no-op executables with the given names first on
// PATH. The configured scanner is stubbed when names is empty.
func WithStubbedBinaries(names ...string) Option {
	return func(t testing.TB, base string, cfg *config.Config) {
		if len(names) == 0 {
			names = []string{cfg.Scan.Command}
		}
		bin := filepath.Join(base, "bin")
		if err := os.MkdirAll(bin, 0o755); err != nil {
			t.Fatalf("create stub dir: %v", err)
		}
		for _, name := range names {
			if err := os.WriteFile(filepath.Join(bin, filepath.Base(name)), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
				t.Fatalf("stub %s: %v", name, err)
			}
		}
		t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the temp directory NewConfig rooted cfg under.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Daemon.StateDir)
}
