// Package history persists one row per device run in SQLite so operators
// can see what happened to each inserted device after the fact. It is an
// audit trail only: nothing in the daemon reads it back to make decisions.
package history
