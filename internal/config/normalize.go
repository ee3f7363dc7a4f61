package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeDaemon(); err != nil {
		return err
	}
	if err := c.normalizeAuth(); err != nil {
		return err
	}
	if err := c.normalizeScan(); err != nil {
		return err
	}
	if err := c.normalizeMount(); err != nil {
		return err
	}
	if err := c.normalizeShare(); err != nil {
		return err
	}
	return c.normalizeLogging()
}

func expandInto(field *string, fallback, key string) error {
	value := strings.TrimSpace(*field)
	if value == "" {
		value = fallback
	}
	expanded, err := expandPath(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*field = expanded
	return nil
}

func (c *Config) normalizeDaemon() error {
	d := &c.Daemon
	if err := expandInto(&d.PIDFile, defaultPIDFile, "daemon.pid_file"); err != nil {
		return err
	}
	if err := expandInto(&d.FIFODir, defaultFIFODir, "daemon.fifo_dir"); err != nil {
		return err
	}
	if err := expandInto(&d.RuleFile, defaultRuleFile, "daemon.rule_file"); err != nil {
		return err
	}
	if err := expandInto(&d.StateDir, defaultStateDir, "daemon.state_dir"); err != nil {
		return err
	}
	d.ClientName = strings.TrimSpace(d.ClientName)
	if d.ClientName == "" {
		d.ClientName = defaultClientName
	}
	if d.MaxConcurrentDevices == 0 {
		d.MaxConcurrentDevices = defaultMaxConcurrentDevices
	}
	if d.DisabledPollSeconds == 0 {
		d.DisabledPollSeconds = defaultDisabledPollSeconds
	}
	return nil
}

func (c *Config) normalizeAuth() error {
	a := &c.Auth
	a.Frontend = strings.ToLower(strings.TrimSpace(a.Frontend))
	if a.Frontend == "" {
		a.Frontend = defaultFrontend
	}
	a.HashAlgorithm = strings.ToLower(strings.TrimSpace(a.HashAlgorithm))
	if a.HashAlgorithm == "" {
		a.HashAlgorithm = defaultHashAlgorithm
	}
	a.SuperUser = strings.TrimSpace(a.SuperUser)
	if a.SuperUser == "" {
		a.SuperUser = defaultSuperUser
	}
	if err := expandInto(&a.PasswordFile, defaultPasswordFile, "auth.password_file"); err != nil {
		return err
	}
	if err := expandInto(&a.ShadowFile, defaultShadowFile, "auth.shadow_file"); err != nil {
		return err
	}
	if err := expandInto(&a.PasswdFile, defaultPasswdFile, "auth.passwd_file"); err != nil {
		return err
	}
	if err := expandInto(&a.TTYDir, defaultTTYDir, "auth.tty_dir"); err != nil {
		return err
	}
	a.DialogCommand = trimList(a.DialogCommand)
	if len(a.DialogCommand) == 0 {
		a.DialogCommand = append([]string(nil), defaultDialogCommand...)
	}
	return nil
}

func (c *Config) normalizeScan() error {
	c.Scan.Command = strings.TrimSpace(c.Scan.Command)
	if c.Scan.Command == "" {
		c.Scan.Command = defaultScanCommand
	}
	if c.Scan.TimeoutSeconds == 0 {
		c.Scan.TimeoutSeconds = defaultScanTimeoutSeconds
	}
	return expandInto(&c.Scan.LogFile, defaultScanLogFile, "scan.log_file")
}

func (c *Config) normalizeMount() error {
	m := &c.Mount
	if strings.TrimSpace(m.MountPoint) != "" {
		var err error
		if m.MountPoint, err = expandPath(strings.TrimSpace(m.MountPoint)); err != nil {
			return fmt.Errorf("mount.mount_point: %w", err)
		}
	}
	if err := expandInto(&m.MountRoot, defaultMountRoot, "mount.mount_root"); err != nil {
		return err
	}
	if err := expandInto(&m.FallbackMountPoint, defaultFallbackMountPoint, "mount.fallback_mount_point"); err != nil {
		return err
	}
	m.MountableType = strings.ToLower(strings.TrimSpace(m.MountableType))
	if m.MountableType == "" {
		m.MountableType = defaultMountableType
	}
	return nil
}

func (c *Config) normalizeShare() error {
	s := &c.Share
	if err := expandInto(&s.ConfigFile, defaultShareConfigFile, "share.config_file"); err != nil {
		return err
	}
	if strings.TrimSpace(s.BackupFile) == "" {
		s.BackupFile = s.ConfigFile + ".bak"
	}
	if err := expandInto(&s.BackupFile, s.BackupFile, "share.backup_file"); err != nil {
		return err
	}
	if err := expandInto(&s.LockFile, defaultShareLockFile, "share.lock_file"); err != nil {
		return err
	}
	if err := expandInto(&s.PIDDir, defaultSharePIDDir, "share.pid_dir"); err != nil {
		return err
	}
	s.Workgroup = strings.TrimSpace(s.Workgroup)
	if s.Workgroup == "" {
		s.Workgroup = defaultShareWorkgroup
	}
	s.HostsAllow = strings.TrimSpace(s.HostsAllow)
	if s.HostsAllow == "" {
		s.HostsAllow = defaultShareHostsAllow
	}
	s.LogFile = strings.TrimSpace(s.LogFile)
	if s.LogFile == "" {
		s.LogFile = defaultShareLogFile
	}
	s.Services = trimList(s.Services)
	if len(s.Services) == 0 {
		s.Services = append([]string(nil), defaultShareServices...)
	}
	return nil
}

func (c *Config) normalizeLogging() error {
	if err := expandInto(&c.Logging.File, defaultLogFile, "logging.file"); err != nil {
		return err
	}
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
		c.Logging.Format = "json"
	default:
		c.Logging.Format = format
	}
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
	if strings.TrimSpace(c.Metrics.Textfile) != "" {
		var err error
		if c.Metrics.Textfile, err = expandPath(strings.TrimSpace(c.Metrics.Textfile)); err != nil {
			return fmt.Errorf("metrics.textfile: %w", err)
		}
	}
	return nil
}

func trimList(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
