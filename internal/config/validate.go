package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDaemon(); err != nil {
		return err
	}
	if err := c.validateAuth(); err != nil {
		return err
	}
	if err := c.validateScan(); err != nil {
		return err
	}
	if err := c.validateMount(); err != nil {
		return err
	}
	if err := c.validateShare(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDaemon() error {
	if c.Daemon.MaxConcurrentDevices < 1 {
		return errors.New("daemon.max_concurrent_devices must be positive")
	}
	if c.Daemon.DisabledPollSeconds < 1 {
		return errors.New("daemon.disabled_poll_seconds must be positive")
	}
	if strings.ContainsAny(c.Daemon.ClientName, " \t\n") {
		return fmt.Errorf("daemon.client_name %q must be a single word", c.Daemon.ClientName)
	}
	return nil
}

func (c *Config) validateAuth() error {
	switch c.Auth.Frontend {
	case FrontendAuto, FrontendPipe, FrontendDialog:
	default:
		return fmt.Errorf("auth.frontend: unsupported value %q (want auto, pipe, or dialog)", c.Auth.Frontend)
	}
	if c.Auth.MaxAttempts < 1 {
		return errors.New("auth.max_attempts must be at least 1")
	}
	if c.Auth.AttemptTimeoutSeconds < 0 {
		return errors.New("auth.attempt_timeout_seconds must be zero or positive")
	}
	if c.Auth.FailDelayMS < 0 {
		return errors.New("auth.fail_delay_ms must be zero or positive")
	}
	switch c.Auth.HashAlgorithm {
	case HashSHA512, HashBcrypt:
	default:
		return fmt.Errorf("auth.hash_algorithm: unsupported value %q (want sha512 or bcrypt)", c.Auth.HashAlgorithm)
	}
	return nil
}

func (c *Config) validateScan() error {
	if c.Scan.TimeoutSeconds < 0 {
		return errors.New("scan.timeout_seconds must be zero or positive")
	}
	return nil
}

func (c *Config) validateMount() error {
	switch c.Mount.MountableType {
	case "partition", "disk":
	default:
		return fmt.Errorf("mount.mountable_type: unsupported value %q (want partition or disk)", c.Mount.MountableType)
	}
	return nil
}

func (c *Config) validateShare() error {
	if c.Share.ConfigFile == c.Share.BackupFile {
		return errors.New("share.backup_file must differ from share.config_file")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be zero or positive")
	}
	return nil
}
