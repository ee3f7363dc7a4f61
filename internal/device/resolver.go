package device

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// Resolver fills in attributes the triggering event did not carry, reading
// the udev database and the USB parent's sysfs attributes directly.
type Resolver struct {
	SysRoot  string
	UdevData string
}

// NewResolver returns a resolver over the live /sys and /run/udev.
func NewResolver() *Resolver {
	return &Resolver{SysRoot: "/sys", UdevData: "/run/udev/data"}
}

// Resolve merges udev database properties into env and returns the device.
// Kernel-only events (as seen during startup enumeration) carry no ID_*
// properties; the udev database does.
func (r *Resolver) Resolve(env map[string]string) Device {
	merged := make(map[string]string, len(env))
	for k, v := range env {
		merged[k] = v
	}
	if merged["MAJOR"] != "" && merged["MINOR"] != "" {
		for k, v := range r.udevProperties(merged["MAJOR"], merged["MINOR"]) {
			if _, ok := merged[k]; !ok {
				merged[k] = v
			}
		}
	}
	d := FromEnv(merged)
	r.enrichFromSysfs(&d)
	return d
}

func (r *Resolver) udevProperties(major, minor string) map[string]string {
	props := map[string]string{}
	file, err := os.Open(filepath.Join(r.UdevData, "b"+major+":"+minor))
	if err != nil {
		return props
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "E:") {
			continue
		}
		key, value, ok := strings.Cut(strings.TrimPrefix(line, "E:"), "=")
		if ok {
			props[key] = value
		}
	}
	return props
}

// enrichFromSysfs walks up from the device to the first USB device node and
// reads its descriptor strings.
func (r *Resolver) enrichFromSysfs(d *Device) {
	if d.DevPath == "" {
		return
	}
	dir := filepath.Join(r.SysRoot, d.DevPath)
	root := filepath.Clean(r.SysRoot)
	for dir != root && dir != "/" && dir != "." {
		if _, err := os.Stat(filepath.Join(dir, "idVendor")); err == nil {
			d.USBParent = true
			d.Manufacturer = firstNonEmpty(readAttr(dir, "manufacturer"), d.Manufacturer)
			d.Product = firstNonEmpty(readAttr(dir, "product"), d.Product)
			d.Serial = firstNonEmpty(d.Serial, readAttr(dir, "serial"))
			d.VendorID = firstNonEmpty(d.VendorID, readAttr(dir, "idVendor"))
			d.ProductID = firstNonEmpty(d.ProductID, readAttr(dir, "idProduct"))
			return
		}
		dir = filepath.Dir(dir)
	}
}

func readAttr(dir, name string) string {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
