package preflight

import (
	"os"
	"path/filepath"

	"sield/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// RunAll executes every check that applies to cfg.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckPrivileges(os.Geteuid()),
		CheckWritable("PID file directory", filepath.Dir(cfg.Daemon.PIDFile)),
		CheckWritable("Pipe directory", cfg.Daemon.FIFODir),
		CheckWritable("State directory", cfg.Daemon.StateDir),
		CheckWritable("Mount root", cfg.Mount.MountRoot),
	}
	if cfg.SuppressAutomount() {
		results = append(results, CheckWritable("Automount rule directory", filepath.Dir(cfg.Daemon.RuleFile)))
	}
	if cfg.ShareEnabled() {
		results = append(results, CheckWritable("Share config directory", filepath.Dir(cfg.Share.ConfigFile)))
	}
	results = append(results,
		CheckCredential(cfg.Auth.PasswordFile, cfg.Auth.ShadowFile),
		CheckUSBSysfs(sysBusUSB),
	)
	return results
}
