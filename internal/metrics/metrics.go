// Package metrics keeps daemon counters in a private Prometheus registry and
// writes them to a node-exporter textfile. Nothing listens on the network.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder collects device outcomes.
type Recorder struct {
	registry *prometheus.Registry
	path     string
	mu       sync.Mutex

	devices  *prometheus.CounterVec
	auth     *prometheus.CounterVec
	scans    *prometheus.CounterVec
	failures *prometheus.CounterVec
	inFlight prometheus.Gauge
	mounted  prometheus.Gauge
	shared   prometheus.Gauge
}

// New returns a recorder that writes to path. An empty path keeps the
// counters in memory only.
func New(path string) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		path:     path,
		devices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sield",
			Name:      "devices_total",
			Help:      "USB storage devices handled, by final state.",
		}, []string{"state"}),
		auth: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sield",
			Name:      "auth_sessions_total",
			Help:      "Authentication sessions, by outcome.",
		}, []string{"outcome"}),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sield",
			Name:      "scans_total",
			Help:      "Malware scans, by verdict.",
		}, []string{"verdict"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sield",
			Name:      "adapter_failures_total",
			Help:      "Adapter calls that returned an error, by adapter.",
		}, []string{"adapter"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sield",
			Name:      "devices_in_flight",
			Help:      "Devices currently being handled.",
		}),
		mounted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sield",
			Name:      "devices_mounted",
			Help:      "Devices currently mounted by the daemon.",
		}),
		shared: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sield",
			Name:      "devices_shared",
			Help:      "Devices currently exported over the file share.",
		}),
	}
	r.registry.MustRegister(r.devices, r.auth, r.scans, r.failures, r.inFlight, r.mounted, r.shared)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) DeviceStarted() { r.inFlight.Inc() }
func (r *Recorder) DeviceFinished(state string) {
	r.inFlight.Dec()
	r.devices.WithLabelValues(state).Inc()
}
func (r *Recorder) AuthOutcome(outcome string) { r.auth.WithLabelValues(outcome).Inc() }
func (r *Recorder) ScanVerdict(verdict string) { r.scans.WithLabelValues(verdict).Inc() }
func (r *Recorder) AdapterFailed(adapter string) {
	r.failures.WithLabelValues(adapter).Inc()
}

// Mounted adjusts the mounted gauge by delta.
func (r *Recorder) Mounted(delta int) { r.mounted.Add(float64(delta)) }

// Shared adjusts the shared gauge by delta.
func (r *Recorder) Shared(delta int) { r.shared.Add(float64(delta)) }

// Flush writes the textfile. It is a no-op without a path.
func (r *Recorder) Flush() error {
	if r == nil || r.path == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(r.path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
