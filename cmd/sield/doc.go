// Package main hosts the sield control CLI.
//
// The Cobra command tree inspects and stops the daemon through its PID file,
// prints recent device runs from the history store, scaffolds and validates
// configuration, and changes the device-unlock password. `sield daemon` runs
// the daemon itself, exactly like sieldd.
package main
