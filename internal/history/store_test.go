package history_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"sield/internal/history"
	"sield/internal/testsupport"
)

func TestBeginUpdateFinish(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	run := &history.Run{ID: "run-1", DevNode: "/dev/sdb1", Manufacturer: "Kingston", State: "detected"}
	if err := store.Begin(ctx, run); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	run.AuthState = "granted"
	run.AuthAttempts = 2
	run.MountPoint = "/mnt/KINGSTON"
	run.State = "mounted"
	if err := store.Update(ctx, run); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := store.Finish(ctx, run, "unmounted"); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	got, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("expected run")
	}
	if got.State != "unmounted" || got.AuthAttempts != 2 || got.MountPoint != "/mnt/KINGSTON" {
		t.Fatalf("unexpected run %#v", got)
	}
	if !got.Finished() {
		t.Fatal("expected finished run")
	}
	if got.Product != "" {
		t.Fatalf("expected empty product, got %q", got.Product)
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	got, err := store.Get(context.Background(), "absent")
	if err != nil || got != nil {
		t.Fatalf("Get absent = %v, %v", got, err)
	}
}

func TestBeginRequiresID(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	if err := store.Begin(context.Background(), &history.Run{DevNode: "/dev/sdb"}); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestListOrdersNewestFirstAndFilters(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, dev := range []string{"/dev/sdb1", "/dev/sdc1", "/dev/sdb1"} {
		run := &history.Run{ID: dev + string(rune('a'+i)), DevNode: dev, State: "detected", StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.Begin(ctx, run); err != nil {
			t.Fatalf("Begin: %v", err)
		}
	}

	all, err := store.List(ctx, 0, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].ID != "/dev/sdb1c" {
		t.Fatalf("unexpected order: %v", ids(all))
	}

	sdb, err := store.List(ctx, 1, "/dev/sdb1")
	if err != nil {
		t.Fatalf("List filtered: %v", err)
	}
	if len(sdb) != 1 || sdb[0].ID != "/dev/sdb1c" {
		t.Fatalf("unexpected filtered runs: %v", ids(sdb))
	}
}

func TestMarkInterruptedAndPrune(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	ctx := context.Background()
	old := &history.Run{ID: "old", DevNode: "/dev/sdb", State: "mounted", StartedAt: time.Now().Add(-48 * time.Hour)}
	fresh := &history.Run{ID: "fresh", DevNode: "/dev/sdc", State: "mounted"}
	for _, r := range []*history.Run{old, fresh} {
		if err := store.Begin(ctx, r); err != nil {
			t.Fatalf("Begin: %v", err)
		}
	}

	n, err := store.MarkInterrupted(ctx)
	if err != nil || n != 2 {
		t.Fatalf("MarkInterrupted = %d, %v", n, err)
	}
	got, _ := store.Get(ctx, "fresh")
	if got.State != history.StateInterrupted || !got.Finished() {
		t.Fatalf("expected interrupted run, got %#v", got)
	}

	n, err = store.Prune(ctx, time.Now().Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("Prune = %d, %v", n, err)
	}
	if got, _ := store.Get(ctx, "old"); got != nil {
		t.Fatal("old run should be pruned")
	}
}

func TestReopenKeepsSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, err := history.Open(cfg.HistoryPath())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	second, err := history.Open(cfg.HistoryPath())
	if errors.Is(err, history.ErrSchemaMismatch) || err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = second.Close()
}

func ids(runs []*history.Run) []string {
	out := make([]string, 0, len(runs))
	for _, r := range runs {
		out = append(out, r.ID)
	}
	return out
}
