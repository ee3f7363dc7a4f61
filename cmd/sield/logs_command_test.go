package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogsShowsTrailingLines(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.MkdirAll(filepath.Dir(env.cfg.Logging.File), 0o755); err != nil {
		t.Fatal(err)
	}
	body := "one device=/dev/sdb1\ntwo device=/dev/sdc1\nthree device=/dev/sdb1\n"
	if err := os.WriteFile(env.cfg.Logging.File, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := runCLI(t, []string{"logs", "-n", "2"}, env.configPath, "")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if strings.Contains(out, "one") {
		t.Fatalf("expected only the last two lines, got:\n%s", out)
	}
	requireContains(t, out, "two")
	requireContains(t, out, "three")

	out, _, err = runCLI(t, []string{"logs", "--grep", "/dev/sdb1"}, env.configPath, "")
	if err != nil {
		t.Fatalf("logs --grep: %v", err)
	}
	if strings.Contains(out, "two") {
		t.Fatalf("grep did not filter:\n%s", out)
	}
	requireContains(t, out, "one")
}
