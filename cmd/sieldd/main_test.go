package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestExecuteFailsOnInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sield.toml")
	if err := os.WriteFile(path, []byte("[auth]\nfrontend = \"carrier-pigeon\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if code := execute(context.Background(), []string{"--config", path, "--foreground"}); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}

func TestExecuteRejectsArguments(t *testing.T) {
	if code := execute(context.Background(), []string{"extra"}); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}
