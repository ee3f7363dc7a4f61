package main

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"golang.org/x/sys/unix"
)

func TestStatusReportsStoppedDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.configPath, "")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Daemon:           stopped")
	requireContains(t, out, "Pending devices:  0")
}

func TestStatusReportsRunningDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	writePID(t, env.cfg.Daemon.PIDFile, os.Getpid())

	out, _, err := runCLI(t, []string{"status"}, env.configPath, "")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "running (pid "+strconv.Itoa(os.Getpid())+")")
	requireContains(t, out, "Started:")
}

func TestStopWhenNotRunning(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"stop"}, env.configPath, "")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}

func TestPendingListsPipes(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"pending"}, env.configPath, "")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	requireContains(t, out, "No unattended devices")

	if err := os.MkdirAll(env.cfg.Daemon.FIFODir, 0o755); err != nil {
		t.Fatal(err)
	}
	name := "Kingston DataTraveler (sdb1)"
	if err := unix.Mkfifo(filepath.Join(env.cfg.Daemon.FIFODir, name), 0o622); err != nil {
		t.Fatalf("mkfifo: %v", err)
	}

	out, _, err = runCLI(t, []string{"pending"}, env.configPath, "")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	requireContains(t, out, name)
	requireContains(t, out, "Run sld")
}

func writePID(t *testing.T, path string, pid int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}
