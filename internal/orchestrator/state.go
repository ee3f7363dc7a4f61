package orchestrator

// State is a step in one device's lifecycle.
type State int

const (
	StateDetected State = iota
	StateAuthPending
	StateAuthGranted
	StateAuthDenied
	StateScanPending
	StateScanClean
	StateScanInfected
	StateScanError
	StateMounted
	StateSharePending
	StateShared
	StateWatchRemoval
	StateUnmounted
	StateFailed
)

var stateNames = [...]string{
	StateDetected:     "detected",
	StateAuthPending:  "auth_pending",
	StateAuthGranted:  "auth_granted",
	StateAuthDenied:   "auth_denied",
	StateScanPending:  "scan_pending",
	StateScanClean:    "scan_clean",
	StateScanInfected: "scan_infected",
	StateScanError:    "scan_error",
	StateMounted:      "mounted",
	StateSharePending: "share_pending",
	StateShared:       "shared",
	StateWatchRemoval: "watch_removal",
	StateUnmounted:    "unmounted",
	StateFailed:       "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	switch s {
	case StateAuthDenied, StateScanInfected, StateUnmounted, StateFailed:
		return true
	}
	return false
}
