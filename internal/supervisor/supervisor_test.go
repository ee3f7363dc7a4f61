package supervisor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sield/internal/device"
	"sield/internal/logging"
	"sield/internal/orchestrator"
	"sield/internal/share"
)

type fakeSource struct {
	events   chan device.Event
	existing []device.Device
}

func (f *fakeSource) Events(context.Context) (<-chan device.Event, error) { return f.events, nil }
func (f *fakeSource) Existing(context.Context) ([]device.Device, error)   { return f.existing, nil }
func (f *fakeSource) Close() error                                        { return nil }

type fakeRunner struct {
	mu        sync.Mutex
	runs      []string
	started   chan string
	release   chan struct{}
	reconcile map[string]bool
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{started: make(chan string, 16), release: make(chan struct{}), reconcile: map[string]bool{}}
}

func (f *fakeRunner) Eligible(dev device.Device) bool { return dev.USBParent }

func (f *fakeRunner) Reconcile(_ context.Context, dev device.Device) (bool, error) {
	return f.reconcile[dev.DevNode], nil
}

func (f *fakeRunner) Run(ctx context.Context, dev device.Device) orchestrator.Result {
	f.mu.Lock()
	f.runs = append(f.runs, dev.DevNode)
	f.mu.Unlock()
	f.started <- dev.DevNode
	select {
	case <-f.release:
	case <-ctx.Done():
	}
	return orchestrator.Result{State: orchestrator.StateUnmounted}
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

type fakeSwitch struct {
	enabled atomic.Bool
	changes chan bool
}

func (f *fakeSwitch) Enabled() bool        { return f.enabled.Load() }
func (f *fakeSwitch) Changes() <-chan bool { return f.changes }

type fakeSharer struct {
	pending  atomic.Bool
	restores atomic.Int32
}

func (f *fakeSharer) Share(context.Context, share.Request) error { return nil }
func (f *fakeSharer) Restore(context.Context) error {
	f.restores.Add(1)
	f.pending.Store(false)
	return nil
}
func (f *fakeSharer) Pending() bool { return f.pending.Load() }

func usb(node string) device.Device {
	return device.Device{DevNode: node, DevType: "partition", USBParent: true}
}

func startSupervisor(t *testing.T, src *fakeSource, runner Runner, opts Options) (context.CancelFunc, <-chan error) {
	t.Helper()
	opts.Logger = logging.NewNop()
	sup, err := New(src, runner, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()
	return cancel, done
}

func waitStarted(t *testing.T, r *fakeRunner) string {
	t.Helper()
	select {
	case node := <-r.started:
		return node
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for worker")
		return ""
	}
}

func TestDevicesRunConcurrentlyAndJoinOnShutdown(t *testing.T) {
	src := &fakeSource{events: make(chan device.Event)}
	runner := newFakeRunner()
	cancel, done := startSupervisor(t, src, runner, Options{Workers: 4})

	src.events <- device.Event{Device: usb("/dev/sdb1"), Action: device.ActionAdd}
	src.events <- device.Event{Device: usb("/dev/sdc1"), Action: device.ActionAdd}
	first, second := waitStarted(t, runner), waitStarted(t, runner)
	if first == second {
		t.Fatalf("expected two distinct devices, got %s twice", first)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not join workers")
	}
}

func TestDuplicateEventsForSameDeviceAreCoalesced(t *testing.T) {
	src := &fakeSource{events: make(chan device.Event)}
	runner := newFakeRunner()
	cancel, done := startSupervisor(t, src, runner, Options{})
	defer func() { cancel(); <-done }()

	src.events <- device.Event{Device: usb("/dev/sdb1"), Action: device.ActionAdd}
	waitStarted(t, runner)
	src.events <- device.Event{Device: usb("/dev/sdb1"), Action: device.ActionAdd}
	src.events <- device.Event{Device: usb("/dev/sdc1"), Action: device.ActionAdd}
	waitStarted(t, runner)

	if n := runner.count(); n != 2 {
		t.Fatalf("expected 2 runs, got %d", n)
	}
}

func TestIneligibleAndDisabledDevicesIgnored(t *testing.T) {
	src := &fakeSource{events: make(chan device.Event)}
	runner := newFakeRunner()
	sw := &fakeSwitch{changes: make(chan bool, 1)}
	toggled := make(chan bool, 1)
	cancel, done := startSupervisor(t, src, runner, Options{
		Switch:   sw,
		OnToggle: func(_ context.Context, enabled bool) { toggled <- enabled },
	})
	defer func() { cancel(); <-done }()

	src.events <- device.Event{Device: device.Device{DevNode: "/dev/sda1", DevType: "partition"}, Action: device.ActionAdd}
	src.events <- device.Event{Device: usb("/dev/sdb1"), Action: device.ActionAdd}
	// The loop only takes the next event once the previous one is handled.
	src.events <- device.Event{Device: device.Device{DevNode: "/dev/sda2", DevType: "partition"}, Action: device.ActionAdd}

	sw.enabled.Store(true)
	sw.changes <- true
	if v := <-toggled; !v {
		t.Fatal("expected enable toggle")
	}
	src.events <- device.Event{Device: usb("/dev/sdc1"), Action: device.ActionAdd}
	if node := waitStarted(t, runner); node != "/dev/sdc1" {
		t.Fatalf("unexpected device %s", node)
	}
	if n := runner.count(); n != 1 {
		t.Fatalf("expected only the device inserted while enabled, got %d runs", n)
	}
}

func TestReconcileDispatchesExistingDevices(t *testing.T) {
	src := &fakeSource{
		events:   make(chan device.Event),
		existing: []device.Device{usb("/dev/sdb1"), usb("/dev/sdc1"), {DevNode: "/dev/sda1"}},
	}
	runner := newFakeRunner()
	runner.reconcile["/dev/sdc1"] = true
	cancel, done := startSupervisor(t, src, runner, Options{})
	defer func() { cancel(); <-done }()

	if node := waitStarted(t, runner); node != "/dev/sdc1" {
		t.Fatalf("unexpected device %s", node)
	}
	src.events <- device.Event{Device: usb("/dev/sdd1"), Action: device.ActionAdd}
	waitStarted(t, runner)
	if n := runner.count(); n != 2 {
		t.Fatalf("expected 2 runs, got %d", n)
	}
}

func TestRemoveEventRetriesPendingRestore(t *testing.T) {
	src := &fakeSource{events: make(chan device.Event)}
	sharer := &fakeSharer{}
	sharer.pending.Store(true)
	cancel, done := startSupervisor(t, src, newFakeRunner(), Options{Sharer: sharer})

	src.events <- device.Event{Device: usb("/dev/sdb1"), Action: device.ActionRemove}
	src.events <- device.Event{Device: usb("/dev/sdb1"), Action: device.ActionRemove}
	cancel()
	<-done

	if n := sharer.restores.Load(); n != 1 {
		t.Fatalf("expected one restore, got %d", n)
	}
}

func TestPoolOverloadRejectsDevice(t *testing.T) {
	src := &fakeSource{events: make(chan device.Event)}
	runner := newFakeRunner()
	cancel, done := startSupervisor(t, src, runner, Options{Workers: 1})
	defer func() { cancel(); <-done }()

	src.events <- device.Event{Device: usb("/dev/sdb1"), Action: device.ActionAdd}
	waitStarted(t, runner)
	src.events <- device.Event{Device: usb("/dev/sdc1"), Action: device.ActionAdd}
	src.events <- device.Event{Device: usb("/dev/sdd1"), Action: device.ActionAdd}

	select {
	case node := <-runner.started:
		t.Fatalf("unexpected worker for %s", node)
	case <-time.After(100 * time.Millisecond):
	}
}
