package history

import "time"

// Run is one device's pass through the daemon, from insertion to removal or
// rejection.
type Run struct {
	ID           string
	DevNode      string
	Manufacturer string
	Product      string
	Serial       string
	State        string
	AuthState    string
	AuthAttempts int
	ScanVerdict  string
	MountPoint   string
	Shared       bool
	Error        string
	StartedAt    time.Time
	UpdatedAt    time.Time
	FinishedAt   *time.Time
}

// Finished reports whether the run reached a terminal state.
func (r *Run) Finished() bool { return r.FinishedAt != nil }

// Duration returns how long the run took, or has taken so far.
func (r *Run) Duration() time.Duration {
	end := time.Now().UTC()
	if r.FinishedAt != nil {
		end = *r.FinishedAt
	}
	return end.Sub(r.StartedAt)
}

// StateInterrupted marks runs left open by a daemon that did not shut down cleanly.
const StateInterrupted = "interrupted"
