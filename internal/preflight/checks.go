package preflight

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

const sysBusUSB = "/sys/bus/usb/devices"

// CheckPrivileges passes for the superuser, which mounting and reading the
// shadow file require.
func CheckPrivileges(euid int) Result {
	const name = "Privileges"
	if euid != 0 {
		return Result{Name: name, Detail: fmt.Sprintf("running as uid %d (root required)", euid)}
	}
	return Result{Name: name, Passed: true, Detail: "root"}
}

// CheckWritable verifies that path, or its nearest existing ancestor when it
// has not been created yet, is a directory the process can write to.
func CheckWritable(name, path string) Result {
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	existing := path
	for {
		info, err := os.Stat(existing)
		if err == nil {
			if !info.IsDir() {
				return Result{Name: name, Detail: fmt.Sprintf("%s (error: %s is not a directory)", path, existing)}
			}
			break
		}
		if !errors.Is(err, os.ErrNotExist) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: no existing ancestor)", path)}
		}
		existing = parent
	}
	if err := unix.Access(existing, unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", existing, err)}
	}
	if existing != path {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (will be created)", path)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (write ok)", path)}
}

// CheckCredential passes when an application password is set or the shadow
// file can be read for the superuser fallback.
func CheckCredential(passwordFile, shadowFile string) Result {
	const name = "Credential"
	if data, err := os.ReadFile(passwordFile); err == nil && strings.TrimSpace(string(data)) != "" {
		return Result{Name: name, Passed: true, Detail: "application password set"}
	}
	if err := unix.Access(shadowFile, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("no application password and %s unreadable (run 'sield passwd')", shadowFile)}
	}
	return Result{Name: name, Passed: true, Detail: "superuser password from " + shadowFile}
}

// CheckUSBSysfs verifies that USB devices are visible under sysfs.
func CheckUSBSysfs(dir string) Result {
	const name = "USB sysfs"
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return Result{Name: name, Detail: dir + " missing"}
	}
	return Result{Name: name, Passed: true, Detail: dir}
}
