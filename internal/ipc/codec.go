package ipc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/valyala/bytebufferpool"
)

var byteOrder = binary.LittleEndian

// AppendHeader appends the encoded header to dst.
func AppendHeader(dst []byte, h Header) []byte {
	dst = byteOrder.AppendUint32(dst, h.UserLen)
	dst = byteOrder.AppendUint32(dst, h.TTYLen)
	return byteOrder.AppendUint32(dst, h.PasswordLen)
}

// ParseHeader decodes and bounds-checks a header.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrNoMessage
	}
	h := Header{
		UserLen:     byteOrder.Uint32(b[0:4]),
		TTYLen:      byteOrder.Uint32(b[4:8]),
		PasswordLen: byteOrder.Uint32(b[8:12]),
	}
	if err := h.Validate(); err != nil {
		return Header{}, err
	}
	return h, nil
}

// WriteTo encodes r and emits it with a single Write call. The staging
// buffer is wiped before it returns to the pool.
func (r *AuthRequest) WriteTo(w io.Writer) (int64, error) {
	if bytes.IndexByte([]byte(r.TTY), 0) >= 0 || bytes.IndexByte([]byte(r.User), 0) >= 0 || bytes.IndexByte(r.Password, 0) >= 0 {
		return 0, fmt.Errorf("%w: embedded NUL", ErrMalformed)
	}
	h := r.Header()
	if err := h.Validate(); err != nil {
		return 0, err
	}

	buf := bytebufferpool.Get()
	defer func() {
		clear(buf.B)
		bytebufferpool.Put(buf)
	}()

	buf.B = AppendHeader(buf.B, h)
	_, _ = buf.WriteString(r.TTY)
	_ = buf.WriteByte(0)
	_, _ = buf.WriteString(r.User)
	_ = buf.WriteByte(0)
	_, _ = buf.Write(r.Password)
	_ = buf.WriteByte(0)

	n, err := w.Write(buf.B)
	return int64(n), err
}

// ParseBody splits a body into the request fields. The password is copied so
// body can be wiped by the caller.
func ParseBody(h Header, body []byte) (*AuthRequest, error) {
	if len(body) != h.BodySize() {
		return nil, fmt.Errorf("%w: body %d bytes, want %d", ErrMalformed, len(body), h.BodySize())
	}
	tty, rest, err := cutField(body, int(h.TTYLen), "tty")
	if err != nil {
		return nil, err
	}
	user, rest, err := cutField(rest, int(h.UserLen), "user")
	if err != nil {
		return nil, err
	}
	password, _, err := cutField(rest, int(h.PasswordLen), "password")
	if err != nil {
		return nil, err
	}
	return &AuthRequest{
		TTY:      string(tty),
		User:     string(user),
		Password: bytes.Clone(password),
	}, nil
}

func cutField(b []byte, n int, name string) ([]byte, []byte, error) {
	if len(b) < n+1 {
		return nil, nil, fmt.Errorf("%w: %s truncated", ErrMalformed, name)
	}
	field := b[:n]
	if b[n] != 0 || bytes.IndexByte(field, 0) >= 0 {
		return nil, nil, fmt.Errorf("%w: %s not NUL-terminated at declared length", ErrMalformed, name)
	}
	return field, b[n+1:], nil
}

// Decode reads exactly one message from r.
func Decode(r io.Reader) (*AuthRequest, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoMessage, err)
	}
	h, err := ParseHeader(hdr[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	body := make([]byte, h.BodySize())
	defer clear(body)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("%w: body: %v", ErrMalformed, err)
	}
	return ParseBody(h, body)
}
