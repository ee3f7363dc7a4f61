package daemon_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"sield/internal/daemon"
	"sield/internal/logging"
	"sield/internal/policy"
	"sield/internal/share"
	"sield/internal/testsupport"
)

type blockingSupervisor struct {
	started chan struct{}
	err     error
}

func (b *blockingSupervisor) Run(ctx context.Context) error {
	close(b.started)
	if b.err != nil {
		return b.err
	}
	<-ctx.Done()
	return nil
}

type recordingSharer struct{ restores int }

func (r *recordingSharer) Share(context.Context, share.Request) error { return nil }
func (r *recordingSharer) Restore(context.Context) error {
	r.restores++
	return nil
}
func (r *recordingSharer) Pending() bool { return false }

func TestPIDFileSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	first, err := daemon.AcquirePIDFile(cfg.Daemon.PIDFile)
	if err != nil {
		t.Fatalf("AcquirePIDFile: %v", err)
	}
	data, err := os.ReadFile(cfg.Daemon.PIDFile)
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("unexpected pid file contents %q", data)
	}

	if _, err := daemon.AcquirePIDFile(cfg.Daemon.PIDFile); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	if _, err := os.Stat(cfg.Daemon.PIDFile); !os.IsNotExist(err) {
		t.Fatalf("pid file should be removed: %v", err)
	}
}

func TestStalePIDFileIsOverwritten(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := os.MkdirAll(filepath.Dir(cfg.Daemon.PIDFile), 0o755); err != nil {
		t.Fatal(err)
	}
	exited := exec.Command("true")
	if err := exited.Run(); err != nil {
		t.Fatalf("run true: %v", err)
	}
	if err := os.WriteFile(cfg.Daemon.PIDFile, []byte(strconv.Itoa(exited.Process.Pid)+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	pid, err := daemon.AcquirePIDFile(cfg.Daemon.PIDFile)
	if err != nil {
		t.Fatalf("AcquirePIDFile over stale file: %v", err)
	}
	defer pid.Release()

	got, alive, err := daemon.Running(cfg.Daemon.PIDFile)
	if err != nil || !alive || got != os.Getpid() {
		t.Fatalf("Running = %d %v %v", got, alive, err)
	}
}

func TestUnlockedPIDFileOfLiveProcessIsRefused(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := os.MkdirAll(filepath.Dir(cfg.Daemon.PIDFile), 0o755); err != nil {
		t.Fatal(err)
	}
	live := strconv.Itoa(os.Getppid()) + "\n"
	if err := os.WriteFile(cfg.Daemon.PIDFile, []byte(live), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := daemon.AcquirePIDFile(cfg.Daemon.PIDFile); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning for a live pid, got %v", err)
	}
	data, _ := os.ReadFile(cfg.Daemon.PIDFile)
	if string(data) != live {
		t.Fatalf("pid file of a live process was overwritten: %q", data)
	}
}

func TestCleanupRunsOnceInReverseOrder(t *testing.T) {
	c := daemon.NewCleanup(logging.NewNop())
	var order []string
	c.Add("first", func(context.Context) error { order = append(order, "first"); return nil })
	c.Add("second", func(context.Context) error { order = append(order, "second"); return errors.New("boom") })

	err := c.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "second") {
		t.Fatalf("expected joined error naming the step, got %v", err)
	}
	if err2 := c.Run(context.Background()); err2 != err {
		t.Fatalf("second Run should return the first result, got %v", err2)
	}
	if strings.Join(order, ",") != "second,first" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestRunInstallsRuleAndCleansUp(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rule := policy.NewAutomountRule(cfg.Daemon.RuleFile, logging.NewNop())
	sharer := &recordingSharer{}
	d := daemon.New(daemon.Options{
		PIDFile:           cfg.Daemon.PIDFile,
		FIFODir:           cfg.Daemon.FIFODir,
		SuppressAutomount: true,
		Rule:              rule,
		Sharer:            sharer,
		Logger:            logging.NewNop(),
	})
	if err := os.MkdirAll(cfg.Daemon.FIFODir, 0o755); err != nil {
		t.Fatal(err)
	}

	sup := &blockingSupervisor{started: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, sup) }()

	<-sup.started
	if _, err := os.Stat(cfg.Daemon.RuleFile); err != nil {
		t.Fatalf("rule file should exist while running: %v", err)
	}
	if _, err := os.Stat(cfg.Daemon.PIDFile); err != nil {
		t.Fatalf("pid file should exist while running: %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}

	for _, path := range []string{cfg.Daemon.RuleFile, cfg.Daemon.PIDFile, cfg.Daemon.FIFODir} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("%s should be removed: %v", path, err)
		}
	}
	if sharer.restores != 1 {
		t.Fatalf("expected one share restore, got %d", sharer.restores)
	}
	if err := d.Cleanup(context.Background()); err != nil {
		t.Fatalf("repeat Cleanup: %v", err)
	}
	if sharer.restores != 1 {
		t.Fatal("cleanup must not run twice")
	}
}

func TestApplyEnabledTogglesRule(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := daemon.New(daemon.Options{
		SuppressAutomount: true,
		Rule:              policy.NewAutomountRule(cfg.Daemon.RuleFile, logging.NewNop()),
		Logger:            logging.NewNop(),
	})
	d.ApplyEnabled(context.Background(), true)
	if _, err := os.Stat(cfg.Daemon.RuleFile); err != nil {
		t.Fatalf("rule should be installed: %v", err)
	}
	d.ApplyEnabled(context.Background(), false)
	if _, err := os.Stat(cfg.Daemon.RuleFile); !os.IsNotExist(err) {
		t.Fatalf("rule should be removed: %v", err)
	}
}

func TestExitCode(t *testing.T) {
	if got := daemon.ExitCode(syscall.SIGTERM); got != 143 {
		t.Fatalf("ExitCode(SIGTERM) = %d", got)
	}
}
