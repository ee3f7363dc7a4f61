package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sield/internal/config"
	"sield/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	base := testsupport.BaseDir(cfg)
	configPath := filepath.Join(base, "sield.toml")
	writeTestConfig(t, configPath, cfg)

	loaded, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	return &cliTestEnv{cfg: loaded, configPath: configPath, baseDir: base}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	body := fmt.Sprintf(`[daemon]
pid_file = %q
fifo_dir = %q
rule_file = %q
state_dir = %q

[auth]
password_file = %q
fail_delay_ms = 0

[scan]
log_file = %q

[mount]
mount_root = %q
fallback_mount_point = %q

[share]
config_file = %q
backup_file = %q
lock_file = %q
pid_dir = %q

[logging]
file = %q

[metrics]
textfile = %q
`,
		cfg.Daemon.PIDFile, cfg.Daemon.FIFODir, cfg.Daemon.RuleFile, cfg.Daemon.StateDir,
		cfg.Auth.PasswordFile,
		cfg.Scan.LogFile,
		cfg.Mount.MountRoot, cfg.Mount.FallbackMountPoint,
		cfg.Share.ConfigFile, cfg.Share.BackupFile, cfg.Share.LockFile, cfg.Share.PIDDir,
		cfg.Logging.File,
		cfg.Metrics.Textfile,
	)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath, stdin string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
