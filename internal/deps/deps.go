// Package deps checks that the external programs the daemon shells out to
// are installed.
package deps

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"sield/internal/config"
	"sield/internal/logging"
)

// Requirement is one external program sield may invoke.
type Requirement struct {
	Name        string
	Command     string
	Description string
	// Optional requirements only matter when the feature is switched on.
	Optional bool
}

// Status is a Requirement after a PATH lookup.
type Status struct {
	Requirement
	Available bool
	Detail    string
}

// Requirements lists the programs the given configuration will invoke.
// Features switched off in cfg are reported as optional.
func Requirements(cfg *config.Config) []Requirement {
	reqs := []Requirement{
		{"su", "su", "Fallback verifier for system password hashes", true},
		{"Scanner", cfg.Scan.Command, "Malware scan before the final mount", !cfg.ScanEnabled()},
	}
	for _, svc := range cfg.Share.Services {
		reqs = append(reqs, Requirement{svc, svc, "File-sharing service", !cfg.ShareEnabled()})
	}
	if cfg.Auth.Frontend != config.FrontendPipe && len(cfg.Auth.DialogCommand) > 0 {
		reqs = append(reqs, Requirement{
			"Dialog", cfg.Auth.DialogCommand[0], "Graphical password prompt",
			cfg.Auth.Frontend != config.FrontendDialog,
		})
	}
	return reqs
}

// CheckBinaries resolves each requirement against PATH.
func CheckBinaries(reqs []Requirement) []Status {
	out := make([]Status, len(reqs))
	for i, req := range reqs {
		req.Command = strings.TrimSpace(req.Command)
		out[i] = lookup(req)
	}
	return out
}

func lookup(req Requirement) Status {
	s := Status{Requirement: req}
	if req.Command == "" {
		s.Detail = "command not configured"
		return s
	}
	if _, err := exec.LookPath(req.Command); err != nil {
		s.Detail = fmt.Sprintf("binary %q not found", req.Command)
		return s
	}
	s.Available = true
	return s
}

// LogSnapshot records every lookup at debug level and warns about missing
// required programs.
func LogSnapshot(logger *slog.Logger, statuses []Status) {
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			logging.WarnWithContext(logger, "required dependency missing", "dependency_missing",
				logging.String("name", s.Name),
				logging.String("command", s.Command),
				logging.String("detail", s.Detail),
				logging.String(logging.FieldErrorHint, "install "+s.Command+" or disable the feature that needs it"),
				logging.String(logging.FieldImpact, s.Description+" will fail"),
			)
			continue
		}
		logger.Debug("dependency status",
			logging.String("name", s.Name),
			logging.String("command", s.Command),
			logging.Bool("available", s.Available),
			logging.Bool("optional", s.Optional),
		)
	}
}
