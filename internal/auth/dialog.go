package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"

	"sield/internal/config"
	"sield/internal/device"
	"sield/internal/logging"
)

// Dialog is the graphical front end. It runs the configured dialog command
// once per attempt and reads the password from its standard output.
type Dialog struct {
	command     []string
	maxAttempts int
	verifier    Verifier
	run         func(ctx context.Context, argv []string) ([]byte, error)
	logger      *slog.Logger
}

// errDialogCancelled reports that the user dismissed the dialog.
var errDialogCancelled = errors.New("dialog cancelled")

// NewDialog builds the graphical front end.
func NewDialog(cfg *config.Config, verifier Verifier, logger *slog.Logger) *Dialog {
	return &Dialog{
		command:     append([]string(nil), cfg.Auth.DialogCommand...),
		maxAttempts: cfg.Auth.MaxAttempts,
		verifier:    verifier,
		run:         runDialog,
		logger:      logging.NewComponentLogger(logger, "auth"),
	}
}

// Name identifies the front end in logs.
func (d *Dialog) Name() string { return config.FrontendDialog }

// Authenticate prompts up to maxAttempts times.
func (d *Dialog) Authenticate(ctx context.Context, dev device.Device) Outcome {
	logger := d.logger.With(logging.String(logging.FieldDevice, dev.DevNode))
	argv := append(append([]string(nil), d.command...), "--text", "Password to use "+dev.DisplayName())

	attempts := 0
	for attempts < d.maxAttempts {
		out, err := d.run(ctx, argv)
		if ctx.Err() != nil {
			clear(out)
			return Outcome{State: StateAborted, Attempts: attempts, Reason: "shutdown"}
		}
		if err != nil {
			clear(out)
			if errors.Is(err, errDialogCancelled) {
				logger.Info("authentication dialog dismissed", logging.Int("attempts", attempts))
				return Outcome{State: StateDenied, Attempts: attempts, Reason: "cancelled"}
			}
			logging.ErrorWithContext(logger, "authentication dialog failed", "auth_dialog_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "set auth.frontend = \"pipe\" or fix auth.dialog_command"),
			)
			return Outcome{State: StateDenied, Attempts: attempts, Reason: "dialog error"}
		}
		attempts++
		password := bytes.TrimRight(out, "\r\n")
		ok, verr := d.verifier.Verify(ctx, password)
		clear(out)
		if verr != nil {
			logging.WarnWithContext(logger, "credential check failed", "auth_verify_error", logging.Error(verr))
		}
		if ok {
			logger.Info("authentication granted",
				logging.String(logging.FieldEventType, "auth_granted"),
				logging.Int("attempts", attempts),
			)
			return Outcome{State: StateGranted, Attempts: attempts}
		}
		logging.WarnWithContext(logger, "wrong password", "auth_failed",
			logging.Int("attempts_left", d.maxAttempts-attempts),
		)
	}
	return Outcome{State: StateDenied, Attempts: attempts, Reason: "attempts exhausted"}
}

func runDialog(ctx context.Context, argv []string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty dialog command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return stdout.Bytes(), errDialogCancelled
	}
	if err != nil {
		return stdout.Bytes(), fmt.Errorf("run %s: %w", argv[0], err)
	}
	return stdout.Bytes(), nil
}
