package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"
)

// DefaultBodyTimeout bounds the wait for the rest of a message once its
// first byte has arrived.
const DefaultBodyTimeout = 2 * time.Second

// Listener is the daemon end of one authentication pipe. It holds a read
// descriptor plus a write descriptor of its own so the pipe never reports
// end-of-file between clients.
type Listener struct {
	path        string
	reader      *os.File
	keepalive   *os.File
	BodyTimeout time.Duration
}

// Listen opens an existing named pipe for reading.
func Listen(path string) (*Listener, error) {
	reader, err := os.OpenFile(path, os.O_RDONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open pipe for reading: %w", err)
	}
	keepalive, err := os.OpenFile(path, os.O_WRONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		_ = reader.Close()
		return nil, fmt.Errorf("open pipe keepalive: %w", err)
	}
	return &Listener{path: path, reader: reader, keepalive: keepalive, BodyTimeout: DefaultBodyTimeout}, nil
}

// Path returns the pipe path.
func (l *Listener) Path() string { return l.path }

// Next blocks until one message arrives, idle elapses (zero means no limit),
// or ctx ends. Errors wrapping ErrMalformed mean a header was received and
// the message counts as an attempt; ErrNoMessage and ErrIdleTimeout do not.
func (l *Listener) Next(ctx context.Context, idle time.Duration) (*AuthRequest, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = l.reader.SetReadDeadline(time.Now())
	})
	defer stop()

	var first time.Time
	if idle > 0 {
		first = time.Now().Add(idle)
	}
	if err := l.reader.SetReadDeadline(first); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}

	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(l.reader, hdr[:1]); err != nil {
		return nil, l.classify(ctx, err, ErrIdleTimeout)
	}
	if ctx.Err() == nil {
		if err := l.reader.SetReadDeadline(time.Now().Add(l.bodyTimeout())); err != nil {
			return nil, fmt.Errorf("set read deadline: %w", err)
		}
	}
	if _, err := io.ReadFull(l.reader, hdr[1:]); err != nil {
		l.drain()
		return nil, l.classify(ctx, err, ErrNoMessage)
	}

	h, err := ParseHeader(hdr[:])
	if err != nil {
		l.drain()
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	body := make([]byte, h.BodySize())
	defer clear(body)
	if _, err := io.ReadFull(l.reader, body); err != nil {
		l.drain()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: body: %v", ErrMalformed, err)
	}
	req, err := ParseBody(h, body)
	if err != nil {
		l.drain()
		return nil, err
	}
	return req, nil
}

func (l *Listener) classify(ctx context.Context, err error, timeout error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return timeout
	}
	return fmt.Errorf("%w: %v", ErrNoMessage, err)
}

// drain discards whatever is buffered so the next message starts on a
// header boundary.
func (l *Listener) drain() {
	buf := make([]byte, MaxMessageSize)
	defer clear(buf)
	for {
		_ = l.reader.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		n, err := l.reader.Read(buf)
		if n == 0 || err != nil {
			return
		}
	}
}

func (l *Listener) bodyTimeout() time.Duration {
	if l.BodyTimeout > 0 {
		return l.BodyTimeout
	}
	return DefaultBodyTimeout
}

// Close releases both descriptors. Safe to call more than once.
func (l *Listener) Close() error {
	var errs []error
	if l.reader != nil {
		errs = append(errs, l.reader.Close())
		l.reader = nil
	}
	if l.keepalive != nil {
		errs = append(errs, l.keepalive.Close())
		l.keepalive = nil
	}
	return errors.Join(errs...)
}
