package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"sield/internal/config"
	"sield/internal/device"
	"sield/internal/fileutil"
	"sield/internal/ipc"
	"sield/internal/logging"
)

// ErrUntrustedDir reports a pipe directory another user could tamper with.
var ErrUntrustedDir = errors.New("untrusted pipe directory")

const (
	fifoDirMode os.FileMode = 0o755
	fifoMode    os.FileMode = 0o622
)

// Broker is the named-pipe front end. For each device it creates a pipe in
// a shared directory, tells every logged-in terminal about it, and accepts a
// bounded number of password submissions written by the sld client.
type Broker struct {
	dir         string
	clientName  string
	maxAttempts int
	idle        time.Duration
	failDelay   time.Duration
	verifier    Verifier
	sessions    SessionLister
	notifier    terminalNotifier
	logger      *slog.Logger

	// dirMu orders directory creation against remove-if-empty across
	// concurrent sessions.
	dirMu sync.Mutex
}

// NewBroker builds the pipe front end.
func NewBroker(cfg *config.Config, verifier Verifier, logger *slog.Logger) *Broker {
	logger = logging.NewComponentLogger(logger, "auth")
	return &Broker{
		dir:         cfg.Daemon.FIFODir,
		clientName:  cfg.Daemon.ClientName,
		maxAttempts: cfg.Auth.MaxAttempts,
		idle:        cfg.AttemptTimeout(),
		failDelay:   cfg.FailDelay(),
		verifier:    verifier,
		sessions:    UtmpSessions{},
		notifier:    terminalNotifier{ttyDir: cfg.Auth.TTYDir, write: writeTerminal, logger: logger},
		logger:      logger,
	}
}

// Name identifies the front end in logs.
func (b *Broker) Name() string { return config.FrontendPipe }

// Notice is the line written to each terminal.
func Notice(dev device.Device, clientName string) string {
	return fmt.Sprintf("%s inserted. To scan and mount, execute %s\n",
		ipc.PipeName(dev.Manufacturer, dev.Product, dev.DevNode), clientName)
}

// Authenticate runs one session. The pipe and, when empty, its directory are
// removed before it returns, whatever the outcome.
func (b *Broker) Authenticate(ctx context.Context, dev device.Device) (out Outcome) {
	logger := b.logger.With(logging.String(logging.FieldDevice, dev.DevNode))
	path := filepath.Join(b.dir, ipc.PipeName(dev.Manufacturer, dev.Product, dev.DevNode))

	if err := b.createPipe(path); err != nil {
		logging.ErrorWithContext(logger, "could not create authentication pipe", "auth_pipe_failed",
			logging.Error(err),
			logging.String("pipe", path),
			logging.String(logging.FieldErrorHint, "check permissions on "+b.dir),
		)
		return Outcome{State: StateDenied, Reason: "pipe unavailable"}
	}
	defer b.removePipe(path, logger)

	listener, err := ipc.Listen(path)
	if err != nil {
		logging.ErrorWithContext(logger, "could not open authentication pipe", "auth_pipe_failed",
			logging.Error(err),
			logging.String("pipe", path),
		)
		return Outcome{State: StateDenied, Reason: "pipe unavailable"}
	}
	defer func() {
		if err := listener.Close(); err != nil {
			logger.Debug("close authentication pipe", logging.Error(err))
		}
	}()

	if n := b.notify(dev, logger); n == 0 {
		logger.Info("no terminal sessions to ask; ignoring device",
			logging.String(logging.FieldEventType, "auth_no_sessions"),
		)
		return Outcome{State: StateDenied, Reason: "no sessions"}
	}

	return b.attemptLoop(ctx, listener, logger)
}

func (b *Broker) notify(dev device.Device, logger *slog.Logger) int {
	sessions, err := b.sessions.Sessions()
	if err != nil {
		logging.WarnWithContext(logger, "could not enumerate login sessions", "auth_sessions_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "nobody can be prompted for this device"),
		)
		return 0
	}
	n := b.notifier.broadcast(sessions, Notice(dev, b.clientName))
	logger.Info("authentication requested",
		logging.String(logging.FieldEventType, "auth_requested"),
		logging.Int("sessions_notified", n),
		logging.Int("sessions", len(sessions)),
	)
	return n
}

func (b *Broker) attemptLoop(ctx context.Context, listener *ipc.Listener, logger *slog.Logger) Outcome {
	limit := rate.Inf
	if b.failDelay > 0 {
		limit = rate.Every(b.failDelay)
	}
	limiter := rate.NewLimiter(limit, 1)

	attempts := 0
	for attempts < b.maxAttempts {
		req, err := listener.Next(ctx, b.idle)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return Outcome{State: StateAborted, Attempts: attempts, Reason: "shutdown"}
		case errors.Is(err, ipc.ErrIdleTimeout):
			logger.Info("authentication timed out waiting for a password",
				logging.Int("attempts", attempts),
				logging.Duration("idle_timeout", b.idle),
			)
			return Outcome{State: StateDenied, Attempts: attempts, Reason: "idle timeout"}
		case errors.Is(err, ipc.ErrNoMessage):
			logger.Debug("discarded incomplete message", logging.Error(err))
			continue
		case errors.Is(err, ipc.ErrMalformed):
			attempts++
			logging.WarnWithContext(logger, "malformed authentication message", "auth_malformed",
				logging.Error(err),
				logging.Int("attempts_left", b.maxAttempts-attempts),
			)
			continue
		default:
			logging.ErrorWithContext(logger, "authentication pipe read failed", "auth_read_failed",
				logging.Error(err),
			)
			return Outcome{State: StateDenied, Attempts: attempts, Reason: "read error"}
		}

		attempts++
		if err := limiter.Wait(ctx); err != nil {
			req.Wipe()
			return Outcome{State: StateAborted, Attempts: attempts, Reason: "shutdown"}
		}
		ok, verr := b.verifier.Verify(ctx, req.Password)
		req.Wipe()
		if verr != nil {
			logging.WarnWithContext(logger, "credential check failed", "auth_verify_error",
				logging.Error(verr),
				logging.String(logging.FieldImpact, "attempt counted as wrong password"),
			)
		}
		if ok {
			logger.Info("authentication granted",
				logging.String(logging.FieldEventType, "auth_granted"),
				logging.String("user", req.User),
				logging.String("tty", req.TTY),
				logging.Int("attempts", attempts),
			)
			return Outcome{State: StateGranted, Attempts: attempts, User: req.User, TTY: req.TTY}
		}
		logging.WarnWithContext(logger, "wrong password", "auth_failed",
			logging.String("user", req.User),
			logging.String("tty", req.TTY),
			logging.Int("attempts_left", b.maxAttempts-attempts),
		)
	}
	logger.Info("authentication attempts exhausted",
		logging.String(logging.FieldEventType, "auth_denied"),
		logging.Int("attempts", attempts),
	)
	return Outcome{State: StateDenied, Attempts: attempts, Reason: "attempts exhausted"}
}

func (b *Broker) createPipe(path string) error {
	b.dirMu.Lock()
	defer b.dirMu.Unlock()

	if err := ensurePrivateDir(b.dir); err != nil {
		return err
	}
	// A pipe with this name can only be left over from an earlier run.
	if _, err := fileutil.RemoveIfExists(path); err != nil {
		return err
	}
	if err := unix.Mkfifo(path, uint32(fifoMode)); err != nil {
		return fmt.Errorf("mkfifo: %w", err)
	}
	if err := os.Chmod(path, fifoMode); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("chmod pipe: %w", err)
	}
	return nil
}

// ensurePrivateDir creates dir, or accepts an existing one only when it is
// a real directory owned by this process that nobody else can write to.
func ensurePrivateDir(dir string) error {
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return fmt.Errorf("create pipe directory parent: %w", err)
	}
	if err := os.Mkdir(dir, fifoDirMode); err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("create pipe directory: %w", err)
	}
	info, err := os.Lstat(dir)
	if err != nil {
		return fmt.Errorf("inspect pipe directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrUntrustedDir, dir)
	}
	if st, ok := info.Sys().(*syscall.Stat_t); ok && int(st.Uid) != os.Geteuid() {
		return fmt.Errorf("%w: %s is owned by uid %d", ErrUntrustedDir, dir, st.Uid)
	}
	if info.Mode().Perm()&0o022 != 0 {
		return fmt.Errorf("%w: %s is writable by others (%v)", ErrUntrustedDir, dir, info.Mode().Perm())
	}
	if info.Mode().Perm() != fifoDirMode {
		if err := os.Chmod(dir, fifoDirMode); err != nil {
			return fmt.Errorf("chmod pipe directory: %w", err)
		}
	}
	return nil
}

func (b *Broker) removePipe(path string, logger *slog.Logger) {
	if _, err := fileutil.RemoveIfExists(path); err != nil {
		logging.WarnWithContext(logger, "could not remove authentication pipe", "auth_cleanup_failed",
			logging.Error(err),
			logging.String("pipe", path),
			logging.String(logging.FieldErrorHint, "remove it manually"),
		)
	}
	b.dirMu.Lock()
	defer b.dirMu.Unlock()
	if _, err := fileutil.RemoveDirIfEmpty(b.dir); err != nil {
		logger.Debug("pipe directory not removed", logging.Error(err))
	}
}
