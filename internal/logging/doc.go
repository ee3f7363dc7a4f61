// Package logging assembles structured slog loggers and formatting helpers used
// across sield.
//
// It owns the console and JSON handlers, routes output to the terminal and the
// append-only daemon log, and exposes context helpers so every line written
// during a device run carries the device node and run identifier. A no-op
// logger is provided for tests and wiring code that cannot fail.
package logging
