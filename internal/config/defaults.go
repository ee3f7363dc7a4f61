package config

const (
	defaultConfigPath           = "/etc/sield.toml"
	defaultPIDFile              = "/var/run/sield.pid"
	defaultFIFODir              = "/run/sield/sld"
	defaultRuleFile             = "/etc/udev/rules.d/999-sield-prevent-automount.rules"
	defaultStateDir             = "/var/lib/sield"
	defaultClientName           = "sld"
	defaultMaxConcurrentDevices = 16
	defaultDisabledPollSeconds  = 1

	defaultFrontend      = FrontendAuto
	defaultMaxAttempts   = 3
	defaultFailDelayMS   = 1000
	defaultPasswordFile  = "/etc/sield.passwd"
	defaultShadowFile    = "/etc/shadow"
	defaultPasswdFile    = "/etc/passwd"
	defaultSuperUser     = "root"
	defaultTTYDir        = "/dev"
	defaultHashAlgorithm = HashSHA512

	defaultScanCommand        = "clamscan"
	defaultScanLogFile        = "/var/log/sield-av.log"
	defaultScanTimeoutSeconds = 3600

	defaultMountRoot          = "/mnt"
	defaultFallbackMountPoint = "/mnt/sield_usb"
	defaultMountableType      = "partition"

	defaultShareConfigFile = "/etc/samba/smb.conf"
	defaultShareLockFile   = "/var/run/sield-share.lock"
	defaultShareWorkgroup  = "WORKGROUP"
	defaultShareHostsAllow = "127."
	defaultSharePIDDir     = "/var/run"
	defaultShareLogFile    = "/var/log/samba/log.%m"

	defaultLogFile          = "/var/log/sield.log"
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 30

	// Tri-state defaults applied when the file leaves a switch unset.
	defaultEnabled           = true
	defaultSuppressAutomount = true
	defaultRemountExisting   = false
	defaultScanEnabled       = true
	defaultMountReadOnly     = true
	defaultShareEnabled      = false
	defaultShareReadOnly     = true
)

var (
	defaultShareServices = []string{"smbd", "nmbd"}
	defaultDialogCommand = []string{"zenity", "--password", "--title", "sield"}
)

// Default returns a Config populated with repository defaults. Tri-state
// switches are left unset so the accessor defaults apply.
func Default() Config {
	return Config{
		Daemon: Daemon{
			PIDFile:              defaultPIDFile,
			FIFODir:              defaultFIFODir,
			RuleFile:             defaultRuleFile,
			StateDir:             defaultStateDir,
			ClientName:           defaultClientName,
			MaxConcurrentDevices: defaultMaxConcurrentDevices,
			DisabledPollSeconds:  defaultDisabledPollSeconds,
		},
		Auth: Auth{
			Frontend:      defaultFrontend,
			MaxAttempts:   defaultMaxAttempts,
			FailDelayMS:   defaultFailDelayMS,
			PasswordFile:  defaultPasswordFile,
			ShadowFile:    defaultShadowFile,
			PasswdFile:    defaultPasswdFile,
			SuperUser:     defaultSuperUser,
			TTYDir:        defaultTTYDir,
			HashAlgorithm: defaultHashAlgorithm,
			DialogCommand: append([]string(nil), defaultDialogCommand...),
		},
		Scan: Scan{
			Command:        defaultScanCommand,
			LogFile:        defaultScanLogFile,
			TimeoutSeconds: defaultScanTimeoutSeconds,
		},
		Mount: Mount{
			MountRoot:          defaultMountRoot,
			FallbackMountPoint: defaultFallbackMountPoint,
			MountableType:      defaultMountableType,
		},
		Share: Share{
			ConfigFile: defaultShareConfigFile,
			LockFile:   defaultShareLockFile,
			Workgroup:  defaultShareWorkgroup,
			HostsAllow: defaultShareHostsAllow,
			Services:   append([]string(nil), defaultShareServices...),
			PIDDir:     defaultSharePIDDir,
			LogFile:    defaultShareLogFile,
		},
		Logging: Logging{
			File:          defaultLogFile,
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
