package daemonctl

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCheckStates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sield.pid")

	st, err := Check(path)
	if err != nil || st.State != StateStopped {
		t.Fatalf("missing pid file: %+v %v", st, err)
	}

	if err := os.WriteFile(path, []byte("999999\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	st, err = Check(path)
	if err != nil || st.State != StateStale || st.PID != 999999 {
		t.Fatalf("stale pid file: %+v %v", st, err)
	}

	if err := os.WriteFile(path, []byte("1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	st, err = Check(path)
	if err != nil || st.State != StateRunning {
		t.Fatalf("live pid: %+v %v", st, err)
	}
}

func TestStopWithoutDaemonIsNoop(t *testing.T) {
	st, err := Stop(filepath.Join(t.TempDir(), "absent.pid"), time.Second)
	if err != nil || st.State != StateStopped {
		t.Fatalf("Stop = %+v %v", st, err)
	}
}

func TestWaitForShutdownTimesOut(t *testing.T) {
	if err := WaitForShutdown(os.Getpid(), 300*time.Millisecond); err == nil {
		t.Fatal("expected timeout for own pid")
	}
}
