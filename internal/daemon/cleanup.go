package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"sield/internal/logging"
)

// Cleanup runs registered steps in reverse order of registration, once.
type Cleanup struct {
	mu     sync.Mutex
	steps  []cleanupStep
	done   bool
	err    error
	logger *slog.Logger
}

type cleanupStep struct {
	name string
	fn   func(ctx context.Context) error
}

// NewCleanup returns an empty cleanup list.
func NewCleanup(logger *slog.Logger) *Cleanup {
	return &Cleanup{logger: logging.NewComponentLogger(logger, "daemon")}
}

// Add registers a step. Steps added after Run are ignored.
func (c *Cleanup) Add(name string, fn func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return
	}
	c.steps = append(c.steps, cleanupStep{name: name, fn: fn})
}

// Run executes every step even when earlier ones fail and returns the joined
// errors. Later calls return the first call's result without rerunning.
func (c *Cleanup) Run(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return c.err
	}
	c.done = true

	var errs []error
	for i := len(c.steps) - 1; i >= 0; i-- {
		step := c.steps[i]
		if err := step.fn(ctx); err != nil {
			logging.WarnWithContext(c.logger, "cleanup step failed", "cleanup_failed",
				logging.String("step", step.name),
				logging.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
			continue
		}
		c.logger.Debug("cleanup step done", logging.String("step", step.name))
	}
	c.err = errors.Join(errs...)
	return c.err
}
