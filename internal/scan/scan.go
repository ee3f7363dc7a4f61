// Package scan runs the malware scanner over a mounted tree and maps its
// result onto a closed set of verdicts.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"sield/internal/config"
	"sield/internal/logging"
)

// Verdict is the outcome of one scan.
type Verdict int

const (
	// VerdictError means the scanner could not give an answer.
	VerdictError Verdict = iota
	VerdictClean
	VerdictInfected
)

func (v Verdict) String() string {
	switch v {
	case VerdictClean:
		return "clean"
	case VerdictInfected:
		return "infected"
	default:
		return "error"
	}
}

// Scanner inspects a directory tree.
type Scanner interface {
	Scan(ctx context.Context, dir string) (Verdict, error)
}

type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (int, []byte, error)
}

type execCommandRunner struct{}

func (execCommandRunner) Run(ctx context.Context, name string, args ...string) (int, []byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		return exitErr.ExitCode(), out, nil
	}
	if err != nil {
		return -1, out, err
	}
	return 0, out, nil
}

// ClamScanner runs clamscan recursively and logs findings to its own file.
type ClamScanner struct {
	command string
	logFile string
	timeout time.Duration
	runner  commandRunner
	logger  *slog.Logger
}

// NewClamScanner builds a scanner from configuration.
func NewClamScanner(cfg *config.Config, logger *slog.Logger) *ClamScanner {
	return &ClamScanner{
		command: cfg.Scan.Command,
		logFile: cfg.Scan.LogFile,
		timeout: cfg.ScanTimeout(),
		runner:  execCommandRunner{},
		logger:  logging.NewComponentLogger(logger, "scan"),
	}
}

// Scan never returns VerdictClean together with an error. Exit status 0 is
// clean, 1 is infected, anything else is a scanner failure.
func (s *ClamScanner) Scan(ctx context.Context, dir string) (Verdict, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	args := []string{"-r", "--no-summary"}
	if s.logFile != "" {
		args = append(args, "-l", s.logFile)
	}
	args = append(args, dir)

	started := time.Now()
	code, out, err := s.runner.Run(ctx, s.command, args...)
	if err != nil {
		return VerdictError, fmt.Errorf("run %s: %w", s.command, err)
	}
	s.logger.Debug("scanner finished",
		logging.Int("exit_code", code),
		logging.Duration("duration", time.Since(started)),
		logging.String("dir", dir),
	)
	switch code {
	case 0:
		return VerdictClean, nil
	case 1:
		s.logger.Info("scanner reported infected files",
			logging.String(logging.FieldEventType, "scan_infected"),
			logging.String("dir", dir),
			logging.String("findings", summarize(out)),
		)
		return VerdictInfected, nil
	default:
		return VerdictError, fmt.Errorf("%s exited with status %d: %s", s.command, code, summarize(out))
	}
}

func summarize(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) > 5 {
		lines = append(lines[:5], fmt.Sprintf("(%d more)", len(lines)-5))
	}
	return strings.Join(lines, "; ")
}
