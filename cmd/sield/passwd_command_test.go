package main

import (
	"context"
	"os"
	"strings"
	"testing"

	"sield/internal/credential"
	"sield/internal/logging"
)

func setApplicationPassword(t *testing.T, env *cliTestEnv, password string) {
	t.Helper()
	if err := credential.NewStore(env.cfg, logging.NewNop()).Set([]byte(password)); err != nil {
		t.Fatalf("Set: %v", err)
	}
}

func verifyPassword(t *testing.T, env *cliTestEnv, password string) bool {
	t.Helper()
	ok, err := credential.NewStore(env.cfg, logging.NewNop()).Verify(context.Background(), []byte(password))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	return ok
}

func TestPasswdChangesPassword(t *testing.T) {
	env := setupCLITestEnv(t)
	setApplicationPassword(t, env, "old-secret")

	out, _, err := runCLI(t, []string{"passwd"}, env.configPath, "old-secret\nnew-secret\nnew-secret\n")
	if err != nil {
		t.Fatalf("passwd: %v", err)
	}
	requireContains(t, out, "Password updated successfully")
	if !verifyPassword(t, env, "new-secret") {
		t.Fatal("new password not accepted")
	}
	if verifyPassword(t, env, "old-secret") {
		t.Fatal("old password still accepted")
	}

	info, err := os.Stat(env.cfg.Auth.PasswordFile)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("password file mode = %o, want 600", perm)
	}
}

func TestPasswdRejectsWrongCurrentPassword(t *testing.T) {
	env := setupCLITestEnv(t)
	setApplicationPassword(t, env, "old-secret")
	before, _ := os.ReadFile(env.cfg.Auth.PasswordFile)

	_, _, err := runCLI(t, []string{"passwd"}, env.configPath, "wrong\nnew-secret\nnew-secret\n")
	if err == nil || !strings.Contains(err.Error(), "authentication failure") {
		t.Fatalf("expected authentication failure, got %v", err)
	}
	after, _ := os.ReadFile(env.cfg.Auth.PasswordFile)
	if string(before) != string(after) {
		t.Fatal("password file changed")
	}
}

func TestPasswdRejectsMismatch(t *testing.T) {
	env := setupCLITestEnv(t)
	setApplicationPassword(t, env, "old-secret")

	_, _, err := runCLI(t, []string{"passwd"}, env.configPath, "old-secret\nfirst\nsecond\n")
	if err == nil || !strings.Contains(err.Error(), "do not match") {
		t.Fatalf("expected mismatch error, got %v", err)
	}
	if !verifyPassword(t, env, "old-secret") {
		t.Fatal("old password no longer accepted")
	}
}

func TestPasswdSamePasswordIsNoop(t *testing.T) {
	env := setupCLITestEnv(t)
	setApplicationPassword(t, env, "old-secret")
	before, _ := os.ReadFile(env.cfg.Auth.PasswordFile)

	out, _, err := runCLI(t, []string{"passwd"}, env.configPath, "old-secret\nold-secret\nold-secret\n")
	if err != nil {
		t.Fatalf("passwd: %v", err)
	}
	requireContains(t, out, "Password unchanged")
	after, _ := os.ReadFile(env.cfg.Auth.PasswordFile)
	if string(before) != string(after) {
		t.Fatal("password file rewritten")
	}
}
