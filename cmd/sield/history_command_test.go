package main

import (
	"context"
	"strings"
	"testing"

	"sield/internal/history"
	"sield/internal/testsupport"
)

func TestHistoryWithoutDatabase(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"history"}, env.configPath, "")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "No device runs recorded")
}

func TestHistoryListsRuns(t *testing.T) {
	env := setupCLITestEnv(t)
	store := testsupport.MustOpenHistory(t, env.cfg)
	ctx := context.Background()

	mounted := &history.Run{ID: "run-1", DevNode: "/dev/sdb1", Manufacturer: "Kingston", Product: "DataTraveler", State: "detected"}
	if err := store.Begin(ctx, mounted); err != nil {
		t.Fatal(err)
	}
	mounted.AuthState = "granted"
	mounted.AuthAttempts = 2
	mounted.ScanVerdict = "clean"
	mounted.MountPoint = "/mnt/KINGSTON"
	if err := store.Finish(ctx, mounted, "unmounted"); err != nil {
		t.Fatal(err)
	}

	denied := &history.Run{ID: "run-2", DevNode: "/dev/sdc1", Product: "Cruzer", State: "detected"}
	if err := store.Begin(ctx, denied); err != nil {
		t.Fatal(err)
	}
	denied.AuthState = "denied"
	denied.AuthAttempts = 3
	denied.Error = "attempts exhausted"
	if err := store.Finish(ctx, denied, "rejected"); err != nil {
		t.Fatal(err)
	}

	out, _, err := runCLI(t, []string{"history"}, env.configPath, "")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	for _, want := range []string{"/dev/sdb1", "Kingston DataTraveler", "granted/2", "/mnt/KINGSTON", "rejected (attempts exhausted)", "denied/3"} {
		requireContains(t, out, want)
	}

	out, _, err = runCLI(t, []string{"history", "--device", "/dev/sdc1"}, env.configPath, "")
	if err != nil {
		t.Fatalf("history --device: %v", err)
	}
	if strings.Contains(out, "/dev/sdb1") {
		t.Fatalf("filtered output includes other device:\n%s", out)
	}
	requireContains(t, out, "Cruzer")
}
