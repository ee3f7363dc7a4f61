package daemonrun

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"sield/internal/logging"
	"sield/internal/testsupport"
)

func TestSignalContextReportsSignal(t *testing.T) {
	ctx, stop := newSignalContext(context.Background())
	defer stop()

	if err := syscall.Kill(os.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("kill: %v", err)
	}
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context not cancelled by SIGTERM")
	}
	if sig := stop(); sig != syscall.SIGTERM {
		t.Fatalf("stop() = %v", sig)
	}
}

func TestSignalContextStopWithoutSignal(t *testing.T) {
	ctx, stop := newSignalContext(context.Background())
	if sig := stop(); sig != nil {
		t.Fatalf("unexpected signal %v", sig)
	}
	if ctx.Err() == nil {
		t.Fatal("stop should cancel the context")
	}
	if sig := stop(); sig != nil {
		t.Fatal("second stop should be a no-op")
	}
}

func TestNewLoggerWritesConfiguredFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	logger, err := newLogger(cfg, Options{LogLevel: "debug"})
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Debug("hello from test")

	data, err := os.ReadFile(cfg.Logging.File)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected debug line in log file")
	}
}

func TestOpenHistoryMarksInterrupted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := openHistory(context.Background(), cfg, logging.NewNop())
	if store == nil {
		t.Fatal("expected history store")
	}
	_ = store.Close()
}
