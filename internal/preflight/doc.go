// Package preflight checks that the host can run the daemon: privileges,
// writable locations for its files, a usable credential and USB sysfs.
//
// The daemon logs every failed check at startup and keeps going; `sield
// check` prints all of them. Checks for disabled features are skipped.
package preflight
