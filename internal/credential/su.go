package credential

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// ErrBackend reports that the su fallback itself could not run.
var ErrBackend = errors.New("su backend error")

const (
	suTimeout = 6 * time.Second
	nobodyID  = 65534
)

// promptPoll bounds each read while waiting for su to prompt.
var promptPoll = 500 * time.Millisecond

// suVerifier checks a password by letting su(1) prompt for it. su is started
// as an unprivileged user so it always asks, even when the daemon is root.
type suVerifier func(ctx context.Context, user string, password []byte) (bool, error)

func verifyWithSu(ctx context.Context, user string, password []byte) (bool, error) {
	if strings.TrimSpace(user) == "" {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, suTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "su", "-s", "/bin/sh", "-c", "true", user)
	cmd.Env = []string{"PATH=/usr/sbin:/usr/bin:/sbin:/bin", "LC_ALL=C"}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Credential: &syscall.Credential{Uid: nobodyID, Gid: nobodyID},
	}
	f, err := pty.Start(cmd)
	if err != nil {
		return false, fmt.Errorf("%w: start su: %v", ErrBackend, err)
	}
	defer func() { _ = f.Close() }()

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		answerPrompt(f, f, password)
	}()

	err = cmd.Wait()
	_ = f.Close()
	<-readerDone

	if err == nil {
		return true, nil
	}
	if ctx.Err() != nil {
		return false, fmt.Errorf("%w: su timed out", ErrBackend)
	}
	return false, nil
}

type promptSource interface {
	io.Reader
	SetReadDeadline(t time.Time) error
}

// answerPrompt reads from src until a password prompt shows up, writes the
// password to dst once, then drains src until it fails for a reason other
// than a read deadline.
func answerPrompt(src promptSource, dst io.Writer, password []byte) {
	var seen bytes.Buffer
	prompted := false
	buf := make([]byte, 1024)
	for {
		_ = src.SetReadDeadline(time.Now().Add(promptPoll))
		n, err := src.Read(buf)
		if n > 0 && !prompted {
			seen.Write(buf[:n])
			if strings.Contains(strings.ToLower(seen.String()), "password") {
				prompted = true
				line := append(bytes.Clone(password), '\n')
				_, _ = dst.Write(line)
				clear(line)
			}
		}
		if err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
			return
		}
	}
}
