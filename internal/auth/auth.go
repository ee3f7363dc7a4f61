// Package auth decides whether a newly inserted device may be used. A front
// end collects a password from whoever is at the machine and checks it with
// a Verifier; two front ends exist, one relaying over a named pipe from any
// terminal and one running a graphical dialog.
package auth

import (
	"context"
	"log/slog"
	"os"
	"os/exec"

	"sield/internal/config"
	"sield/internal/device"
	"sield/internal/logging"
)

// State is the terminal state of one authentication session.
type State int

const (
	StatePending State = iota
	StateGranted
	StateDenied
	StateAborted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateGranted:
		return "granted"
	case StateDenied:
		return "denied"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Outcome reports how a session ended.
type Outcome struct {
	State    State
	Attempts int
	Reason   string
	User     string
	TTY      string
}

// Granted reports whether the device was approved.
func (o Outcome) Granted() bool { return o.State == StateGranted }

// Verifier checks a submitted secret.
type Verifier interface {
	Verify(ctx context.Context, password []byte) (bool, error)
}

// FrontEnd runs one authentication session for a device.
type FrontEnd interface {
	Name() string
	Authenticate(ctx context.Context, dev device.Device) Outcome
}

// Select returns the front end configured for this host. The auto setting
// prefers the dialog when a display is available and the dialog program is
// installed.
func Select(cfg *config.Config, verifier Verifier, logger *slog.Logger) FrontEnd {
	logger = logging.NewComponentLogger(logger, "auth")
	switch cfg.Auth.Frontend {
	case config.FrontendDialog:
		return NewDialog(cfg, verifier, logger)
	case config.FrontendPipe:
		return NewBroker(cfg, verifier, logger)
	}
	if os.Getenv("DISPLAY") != "" && len(cfg.Auth.DialogCommand) > 0 {
		if _, err := exec.LookPath(cfg.Auth.DialogCommand[0]); err == nil {
			logger.Info("using graphical authentication", logging.String("command", cfg.Auth.DialogCommand[0]))
			return NewDialog(cfg, verifier, logger)
		}
	}
	return NewBroker(cfg, verifier, logger)
}
