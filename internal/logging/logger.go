package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"sield/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string
	// File is appended to when set.
	File string
	// Console receives a copy of every record when non-nil.
	Console io.Writer
}

// New builds a logger writing to the file and console sinks in opts. With
// neither sink set it writes to stderr.
func New(opts Options) (*slog.Logger, error) {
	level := new(slog.LevelVar)
	if err := level.UnmarshalText([]byte(levelName(opts.Level))); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	var sinks []io.Writer
	if opts.Console != nil {
		sinks = append(sinks, opts.Console)
	}
	if path := strings.TrimSpace(opts.File); path != "" {
		f, err := appendLog(path)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, f)
	}
	var out io.Writer = os.Stderr
	if len(sinks) > 0 {
		out = io.MultiWriter(sinks...)
	}

	withSource := level.Level() <= slog.LevelDebug
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "console":
		return slog.New(newPrettyHandler(out, level, withSource)), nil
	case "json":
		return slog.New(newJSONHandler(out, level, withSource)), nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
}

// NewFromConfig creates a logger that appends only to the configured log
// file, leaving the terminal to command-line tools.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil || strings.TrimSpace(cfg.Logging.File) == "" {
		return NewNop(), nil
	}
	return New(Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, File: cfg.Logging.File})
}

// levelName maps config spellings onto slog level names. Unknown values
// fall back to info.
func levelName(s string) string {
	switch s = strings.ToUpper(strings.TrimSpace(s)); s {
	case "DEBUG", "WARN", "ERROR":
		return s
	case "WARNING":
		return "WARN"
	default:
		return "INFO"
	}
}

func appendLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return f, nil
}
