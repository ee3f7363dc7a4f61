package ipc_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"sield/internal/ipc"
)

func makeFIFO(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Kingston DataTraveler (sdb1)")
	require.NoError(t, unix.Mkfifo(path, 0o622))
	return path
}

func TestHeaderFieldOffsetsAreFixed(t *testing.T) {
	req := ipc.NewAuthRequest("/dev/pts/3", "alice", []byte("hunter2"))
	var buf bytes.Buffer
	_, err := req.WriteTo(&buf)
	require.NoError(t, err)

	raw := buf.Bytes()
	assert.Equal(t, uint32(5), binary.LittleEndian.Uint32(raw[0:4]), "UserLen at offset 0")
	assert.Equal(t, uint32(5), binary.LittleEndian.Uint32(raw[4:8]), "TTYLen at offset 4")
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(raw[8:12]), "PasswordLen at offset 8")
	assert.Equal(t, "pts/3\x00alice\x00hunter2\x00", string(raw[ipc.HeaderSize:]))
}

func TestDecodeRoundTrip(t *testing.T) {
	req := ipc.NewAuthRequest("tty1", "root", []byte("s3cret"))
	var buf bytes.Buffer
	_, err := req.WriteTo(&buf)
	require.NoError(t, err)

	got, err := ipc.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, "tty1", got.TTY)
	assert.Equal(t, "root", got.User)
	assert.Equal(t, []byte("s3cret"), got.Password)

	got.Wipe()
	assert.Nil(t, got.Password)
}

func TestParseHeaderRejectsOversizedFields(t *testing.T) {
	tests := []struct {
		name string
		hdr  ipc.Header
	}{
		{name: "tty", hdr: ipc.Header{TTYLen: ipc.MaxTTYLen + 1}},
		{name: "user", hdr: ipc.Header{UserLen: ipc.MaxUserLen + 1}},
		{name: "password", hdr: ipc.Header{PasswordLen: 1 << 31}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ipc.ParseHeader(ipc.AppendHeader(nil, tt.hdr))
			require.ErrorIs(t, err, ipc.ErrFieldTooLong)
		})
	}
}

func TestDecodeRejectsMisplacedTerminator(t *testing.T) {
	raw := ipc.AppendHeader(nil, ipc.Header{UserLen: 4, TTYLen: 4, PasswordLen: 2})
	raw = append(raw, []byte("tty1\x00ro\x00t\x00pw\x00")...)
	_, err := ipc.Decode(bytes.NewReader(raw))
	require.ErrorIs(t, err, ipc.ErrMalformed)
}

func TestDecodeShortHeaderIsNotAnAttempt(t *testing.T) {
	_, err := ipc.Decode(bytes.NewReader([]byte{1, 0, 0}))
	require.ErrorIs(t, err, ipc.ErrNoMessage)
	assert.False(t, errors.Is(err, ipc.ErrMalformed))
}

func TestWriteToRejectsOversizedPassword(t *testing.T) {
	req := ipc.NewAuthRequest("tty1", "root", bytes.Repeat([]byte("x"), ipc.MaxPasswordLen+1))
	_, err := req.WriteTo(&bytes.Buffer{})
	require.ErrorIs(t, err, ipc.ErrFieldTooLong)
}

func TestMessageFitsInPipeBuf(t *testing.T) {
	assert.Less(t, ipc.MaxMessageSize, 4096)
}

func TestSubmitAndReceiveOverFIFO(t *testing.T) {
	path := makeFIFO(t)
	l, err := ipc.Listen(path)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, ipc.Submit(path, ipc.NewAuthRequest("/dev/pts/0", "bob", []byte("first"))))
	require.NoError(t, ipc.Submit(path, ipc.NewAuthRequest("/dev/pts/1", "carol", []byte("second"))))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, err := l.Next(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "pts/0", got.TTY)
	assert.Equal(t, "first", string(got.Password))

	got, err = l.Next(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "carol", got.User)
	assert.Equal(t, "second", string(got.Password))
}

func TestListenerIdleTimeout(t *testing.T) {
	l, err := ipc.Listen(makeFIFO(t))
	require.NoError(t, err)
	defer l.Close()

	_, err = l.Next(context.Background(), 50*time.Millisecond)
	require.ErrorIs(t, err, ipc.ErrIdleTimeout)
}

func TestListenerHonoursCancellation(t *testing.T) {
	l, err := ipc.Listen(makeFIFO(t))
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err = l.Next(ctx, 0)
	require.ErrorIs(t, err, context.Canceled)
}

func TestListenerPartialHeaderIsNotAnAttempt(t *testing.T) {
	path := makeFIFO(t)
	l, err := ipc.Listen(path)
	require.NoError(t, err)
	defer l.Close()
	l.BodyTimeout = 100 * time.Millisecond

	w, err := os.OpenFile(path, os.O_WRONLY|syscall.O_NONBLOCK, 0)
	require.NoError(t, err)
	_, err = w.Write([]byte{3, 0, 0, 0, 2})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = l.Next(context.Background(), time.Second)
	require.ErrorIs(t, err, ipc.ErrNoMessage)
	assert.False(t, errors.Is(err, ipc.ErrMalformed))

	require.NoError(t, ipc.Submit(path, ipc.NewAuthRequest("tty2", "dave", []byte("pw"))))
	got, err := l.Next(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "dave", got.User)
}

func TestListenerOversizedHeaderCountsAsAttempt(t *testing.T) {
	path := makeFIFO(t)
	l, err := ipc.Listen(path)
	require.NoError(t, err)
	defer l.Close()

	w, err := os.OpenFile(path, os.O_WRONLY|syscall.O_NONBLOCK, 0)
	require.NoError(t, err)
	_, err = w.Write(ipc.AppendHeader(nil, ipc.Header{PasswordLen: 1 << 30}))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = l.Next(context.Background(), time.Second)
	require.ErrorIs(t, err, ipc.ErrMalformed)
	require.ErrorIs(t, err, ipc.ErrFieldTooLong)
}

func TestSubmitWithoutReaderIsBusy(t *testing.T) {
	err := ipc.Submit(makeFIFO(t), ipc.NewAuthRequest("tty1", "root", []byte("pw")))
	require.ErrorIs(t, err, ipc.ErrPipeBusy)
}

func TestListPendingSortsPipesOnly(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b (sdc1)", "a (sdb1)"} {
		require.NoError(t, unix.Mkfifo(filepath.Join(dir, name), 0o622))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o644))

	pending, err := ipc.ListPending(dir)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "a (sdb1)", pending[0].Name)
	assert.Equal(t, "b (sdc1)", pending[1].Name)

	none, err := ipc.ListPending(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPipeName(t *testing.T) {
	assert.Equal(t, "SanDisk Cruzer (sdb1)", ipc.PipeName("SanDisk", "Cruzer", "/dev/sdb1"))
	assert.Equal(t, "Unknown Unknown (sdc)", ipc.PipeName("", " ", "/dev/sdc"))
	assert.Equal(t, "A_B Stick (sdd1)", ipc.PipeName("A/B", "Stick", "/dev/sdd1"))
}
