// Package logs reads the daemon's log files for `sield logs`: the last lines
// of a file, then optionally every complete line appended after them.
// Truncation and rotation restart reading from the top of the new file.
package logs
