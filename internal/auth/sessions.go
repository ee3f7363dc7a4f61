package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/shirou/gopsutil/v3/host"

	"sield/internal/logging"
)

// LoginSession is one interactive login.
type LoginSession struct {
	User     string
	Terminal string
}

// SessionLister enumerates interactive logins.
type SessionLister interface {
	Sessions() ([]LoginSession, error)
}

// UtmpSessions reads logins from the utmp database.
type UtmpSessions struct{}

// Sessions lists current logins with a terminal.
func (UtmpSessions) Sessions() ([]LoginSession, error) {
	users, err := host.Users()
	if err != nil {
		return nil, fmt.Errorf("list login sessions: %w", err)
	}
	sessions := make([]LoginSession, 0, len(users))
	for _, u := range users {
		if u.Terminal == "" {
			continue
		}
		sessions = append(sessions, LoginSession{User: u.User, Terminal: u.Terminal})
	}
	return sessions, nil
}

// terminalNotifier writes a notice line to each session's terminal device.
type terminalNotifier struct {
	ttyDir string
	write  func(path, message string) error
	logger *slog.Logger
}

// broadcast returns the number of terminals that received message.
func (n terminalNotifier) broadcast(sessions []LoginSession, message string) int {
	seen := make(map[string]struct{}, len(sessions))
	notified := 0
	for _, s := range sessions {
		path, err := n.terminalPath(s.Terminal)
		if err != nil {
			n.logger.Debug("skipping session", logging.String("terminal", s.Terminal), logging.Error(err))
			continue
		}
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}
		if err := n.write(path, message); err != nil {
			n.logger.Info("could not notify session",
				logging.String("user", s.User),
				logging.String("terminal", path),
				logging.Error(err),
			)
			continue
		}
		notified++
	}
	return notified
}

func (n terminalNotifier) terminalPath(terminal string) (string, error) {
	terminal = strings.TrimPrefix(terminal, "/dev/")
	if terminal == "" || strings.HasPrefix(terminal, ":") {
		return "", errors.New("not a terminal device")
	}
	root := filepath.Clean(n.ttyDir)
	path := filepath.Join(root, terminal)
	if !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return "", errors.New("terminal outside device directory")
	}
	return path, nil
}

func writeTerminal(path, message string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|syscall.O_NOCTTY|syscall.O_NONBLOCK, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeCharDevice == 0 {
		return errors.New("not a character device")
	}
	_, err = f.WriteString(message)
	return err
}
