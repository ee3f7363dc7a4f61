package daemon

import (
	"path/filepath"
	"syscall"
	"testing"

	"golang.org/x/sys/unix"
)

func TestCloseInheritedOnExecMarksDescriptors(t *testing.T) {
	// syscall.Open does not add O_CLOEXEC, like a descriptor handed down by
	// a careless parent.
	fd, err := syscall.Open(filepath.Join(t.TempDir(), "inherited"), syscall.O_CREAT|syscall.O_RDWR, 0o600)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer syscall.Close(fd)

	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	if err != nil {
		t.Fatalf("F_GETFD: %v", err)
	}
	if flags&unix.FD_CLOEXEC != 0 {
		t.Fatal("descriptor unexpectedly starts close-on-exec")
	}

	if err := closeInheritedOnExec(); err != nil {
		t.Fatalf("closeInheritedOnExec: %v", err)
	}
	flags, err = unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	if err != nil {
		t.Fatalf("F_GETFD: %v", err)
	}
	if flags&unix.FD_CLOEXEC == 0 {
		t.Fatal("descriptor should be close-on-exec")
	}
}
