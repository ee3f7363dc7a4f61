// Package config loads, normalizes, and validates sield configuration data.
//
// The file is TOML. Policy switches are tri-state: absent from the file they
// take the documented default, otherwise the explicit value wins. Resolve
// them through the accessor methods on Config (ScanEnabled, MountReadOnly,
// and so on) rather than reading the raw pointers.
//
// A Config is built once at startup and treated as read-only afterwards; the
// daemon hands the same pointer to every component.
package config
