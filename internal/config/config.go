package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Authentication front ends.
const (
	FrontendAuto   = "auto"
	FrontendPipe   = "pipe"
	FrontendDialog = "dialog"
)

// Hash algorithms accepted when a new application password is stored.
const (
	HashSHA512 = "sha512"
	HashBcrypt = "bcrypt"
)

// Daemon contains process-level settings.
type Daemon struct {
	Enabled              *bool  `toml:"enabled"`
	PIDFile              string `toml:"pid_file"`
	FIFODir              string `toml:"fifo_dir"`
	RuleFile             string `toml:"rule_file"`
	SuppressAutomount    *bool  `toml:"suppress_automount"`
	RemountExisting      *bool  `toml:"remount_existing"`
	StateDir             string `toml:"state_dir"`
	ClientName           string `toml:"client_name"`
	MaxConcurrentDevices int    `toml:"max_concurrent_devices"`
	DisabledPollSeconds  int    `toml:"disabled_poll_seconds"`
}

// Auth contains credential relay and verification settings.
type Auth struct {
	Frontend    string `toml:"frontend"`
	MaxAttempts int    `toml:"max_attempts"`
	// AttemptTimeoutSeconds bounds the wait for one attempt; 0 waits forever.
	AttemptTimeoutSeconds int      `toml:"attempt_timeout_seconds"`
	FailDelayMS           int      `toml:"fail_delay_ms"`
	PasswordFile          string   `toml:"password_file"`
	ShadowFile            string   `toml:"shadow_file"`
	PasswdFile            string   `toml:"passwd_file"`
	SuperUser             string   `toml:"superuser"`
	TTYDir                string   `toml:"tty_dir"`
	HashAlgorithm         string   `toml:"hash_algorithm"`
	DialogCommand         []string `toml:"dialog_command"`
}

// Scan contains malware scanner settings.
type Scan struct {
	Enabled        *bool  `toml:"enabled"`
	Command        string `toml:"command"`
	LogFile        string `toml:"log_file"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Mount contains mount point and permission settings.
type Mount struct {
	MountPoint         string `toml:"mount_point"`
	MountRoot          string `toml:"mount_root"`
	FallbackMountPoint string `toml:"fallback_mount_point"`
	ReadOnly           *bool  `toml:"read_only"`
	MountableType      string `toml:"mountable_type"`
}

// Share contains file-sharing service settings.
type Share struct {
	Enabled    *bool    `toml:"enabled"`
	ConfigFile string   `toml:"config_file"`
	BackupFile string   `toml:"backup_file"`
	LockFile   string   `toml:"lock_file"`
	Workgroup  string   `toml:"workgroup"`
	HostsAllow string   `toml:"hosts_allow"`
	ReadOnly   *bool    `toml:"read_only"`
	Services   []string `toml:"services"`
	PIDDir     string   `toml:"pid_dir"`
	LogFile    string   `toml:"log_file"`
}

// Logging contains configuration for log output.
type Logging struct {
	File          string `toml:"file"`
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Metrics contains the optional textfile exporter target.
type Metrics struct {
	Textfile string `toml:"textfile"`
}

// Config encapsulates all configuration values for sield.
//
// Configuration sections by subsystem:
//   - Daemon: pid file, pipe directory, automount rule, concurrency
//   - Auth: front end selection, attempt policy, credential sources
//   - Scan: scanner command and log
//   - Mount: mount point selection and read-only policy
//   - Share: shared-service config file and reload targets
//   - Logging: log file, format, level, and retention
//   - Metrics: prometheus textfile output
type Config struct {
	Daemon  Daemon  `toml:"daemon"`
	Auth    Auth    `toml:"auth"`
	Scan    Scan    `toml:"scan"`
	Mount   Mount   `toml:"mount"`
	Share   Share   `toml:"share"`
	Logging Logging `toml:"logging"`
	Metrics Metrics `toml:"metrics"`
}

// DefaultConfigPath returns the system configuration file location.
func DefaultConfigPath() string {
	if value, ok := os.LookupEnv("SIELD_CONFIG"); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return defaultConfigPath
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// ReadEnabled re-reads only the daemon enable switch from path. A missing
// file resolves to the default.
func ReadEnabled(path string) (bool, error) {
	var partial struct {
		Daemon struct {
			Enabled *bool `toml:"enabled"`
		} `toml:"daemon"`
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return defaultEnabled, nil
		}
		return false, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &partial); err != nil {
		return false, fmt.Errorf("parse config: %w", err)
	}
	return ToggleOf(partial.Daemon.Enabled).Or(defaultEnabled), nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultConfigPath()
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %q is a directory", expanded)
	}
	return expanded, true, nil
}

// Enabled reports whether the daemon should process devices at all.
func (c *Config) Enabled() bool {
	return ToggleOf(c.Daemon.Enabled).Or(defaultEnabled)
}

// SuppressAutomount reports whether the automount rule file should exist.
func (c *Config) SuppressAutomount() bool {
	return ToggleOf(c.Daemon.SuppressAutomount).Or(defaultSuppressAutomount)
}

// RemountExisting reports whether already-mounted devices are re-run at startup.
func (c *Config) RemountExisting() bool {
	return ToggleOf(c.Daemon.RemountExisting).Or(defaultRemountExisting)
}

// ScanEnabled reports whether devices are scanned before the final mount.
func (c *Config) ScanEnabled() bool {
	return ToggleOf(c.Scan.Enabled).Or(defaultScanEnabled)
}

// MountReadOnly reports the configured final mount policy.
func (c *Config) MountReadOnly() bool {
	return ToggleOf(c.Mount.ReadOnly).Or(defaultMountReadOnly)
}

// ShareEnabled reports whether final mounts are republished.
func (c *Config) ShareEnabled() bool {
	return ToggleOf(c.Share.Enabled).Or(defaultShareEnabled)
}

// ShareReadOnly reports whether the share is exported read-only.
func (c *Config) ShareReadOnly() bool {
	return ToggleOf(c.Share.ReadOnly).Or(defaultShareReadOnly)
}

// AttemptTimeout returns the per-attempt idle timeout, zero meaning none.
func (c *Config) AttemptTimeout() time.Duration {
	return time.Duration(c.Auth.AttemptTimeoutSeconds) * time.Second
}

// FailDelay returns the pause inserted after a rejected attempt.
func (c *Config) FailDelay() time.Duration {
	return time.Duration(c.Auth.FailDelayMS) * time.Millisecond
}

// ScanTimeout returns the upper bound on one scanner run.
func (c *Config) ScanTimeout() time.Duration {
	return time.Duration(c.Scan.TimeoutSeconds) * time.Second
}

// DisabledPollInterval returns how often the disabled daemon rechecks its switch.
func (c *Config) DisabledPollInterval() time.Duration {
	return time.Duration(c.Daemon.DisabledPollSeconds) * time.Second
}

// HistoryPath returns the run history database location.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Daemon.StateDir, "history.db")
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Daemon.StateDir, filepath.Dir(c.Logging.File)} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && pathValue[1] == '/' {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
