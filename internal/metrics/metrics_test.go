package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCountsAndFlushes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "textfile", "sield.prom")
	r := New(path)

	r.DeviceStarted()
	r.AuthOutcome("granted")
	r.ScanVerdict("clean")
	r.Mounted(1)
	r.Mounted(-1)
	r.DeviceFinished("unmounted")
	r.AdapterFailed("share")

	if got := testutil.ToFloat64(r.devices.WithLabelValues("unmounted")); got != 1 {
		t.Fatalf("devices_total = %v", got)
	}
	if got := testutil.ToFloat64(r.inFlight); got != 0 {
		t.Fatalf("in flight = %v", got)
	}
	if err := r.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	for _, want := range []string{`sield_auth_sessions_total{outcome="granted"} 1`, `sield_adapter_failures_total{adapter="share"} 1`} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("textfile missing %q:\n%s", want, data)
		}
	}
}

func TestFlushWithoutPathIsNoop(t *testing.T) {
	if err := New("").Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	var nilRecorder *Recorder
	if err := nilRecorder.Flush(); err != nil {
		t.Fatalf("nil Flush: %v", err)
	}
}
