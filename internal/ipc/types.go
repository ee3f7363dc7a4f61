package ipc

import (
	"errors"
	"fmt"
	"strings"
)

// HeaderSize is the encoded size of Header.
const HeaderSize = 12

// Field bounds enforced on both sides of the pipe.
const (
	MaxTTYLen      = 64
	MaxUserLen     = 256
	MaxPasswordLen = 1024
	// MaxMessageSize stays below PIPE_BUF so one write is atomic.
	MaxMessageSize = HeaderSize + MaxTTYLen + MaxUserLen + MaxPasswordLen + 3
)

const devPrefix = "/dev/"

var (
	// ErrFieldTooLong reports a header length outside the fixed bounds.
	ErrFieldTooLong = errors.New("ipc: field exceeds maximum length")
	// ErrMalformed reports a message whose header arrived but whose body is invalid.
	ErrMalformed = errors.New("ipc: malformed message")
	// ErrNoMessage reports bytes that never formed a complete header.
	ErrNoMessage = errors.New("ipc: incomplete header")
	// ErrIdleTimeout reports that no message started within the idle window.
	ErrIdleTimeout = errors.New("ipc: idle timeout")
	// ErrPipeBusy reports a pipe with no reader on the other end.
	ErrPipeBusy = errors.New("device currently unavailable")
)

// Header carries the three string lengths. Field names, not declaration
// order, define the encoding: UserLen at offset 0, TTYLen at 4, PasswordLen at 8.
type Header struct {
	UserLen     uint32
	TTYLen      uint32
	PasswordLen uint32
}

// Validate bounds-checks every length.
func (h Header) Validate() error {
	switch {
	case h.TTYLen > MaxTTYLen:
		return fmt.Errorf("%w: tty %d > %d", ErrFieldTooLong, h.TTYLen, MaxTTYLen)
	case h.UserLen > MaxUserLen:
		return fmt.Errorf("%w: user %d > %d", ErrFieldTooLong, h.UserLen, MaxUserLen)
	case h.PasswordLen > MaxPasswordLen:
		return fmt.Errorf("%w: password %d > %d", ErrFieldTooLong, h.PasswordLen, MaxPasswordLen)
	}
	return nil
}

// BodySize returns the number of bytes following the header.
func (h Header) BodySize() int {
	return int(h.TTYLen) + int(h.UserLen) + int(h.PasswordLen) + 3
}

// AuthRequest is one authentication attempt. Password is a byte slice so the
// receiver can wipe it after verification.
type AuthRequest struct {
	TTY      string
	User     string
	Password []byte
}

// NewAuthRequest builds a request, stripping any /dev/ prefix from tty.
func NewAuthRequest(tty, user string, password []byte) AuthRequest {
	return AuthRequest{
		TTY:      strings.TrimPrefix(tty, devPrefix),
		User:     user,
		Password: password,
	}
}

// Header derives the wire header for r.
func (r *AuthRequest) Header() Header {
	return Header{
		UserLen:     uint32(len(r.User)),
		TTYLen:      uint32(len(r.TTY)),
		PasswordLen: uint32(len(r.Password)),
	}
}

// Wipe zeroes the password bytes.
func (r *AuthRequest) Wipe() {
	if r == nil {
		return
	}
	clear(r.Password)
	r.Password = nil
}

// PipeName returns the human-readable pipe name for a device,
// "<manufacturer> <product> (<node>)" with the /dev/ prefix dropped.
func PipeName(manufacturer, product, devnode string) string {
	name := fmt.Sprintf("%s %s (%s)",
		orUnknown(manufacturer), orUnknown(product), strings.TrimPrefix(devnode, devPrefix))
	return strings.ReplaceAll(name, "/", "_")
}

func orUnknown(value string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return "Unknown"
}
