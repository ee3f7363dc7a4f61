// Package daemon owns the process-level lifecycle of sieldd: detaching from
// the terminal, the single-instance PID file, the automount rule, and the
// cleanup that runs exactly once on the way out.
//
// Device handling itself lives in the supervisor and orchestrator packages;
// this package starts them, stops them, and puts the host back the way it
// found it.
package daemon
