// Package device describes one hotplugged block device as captured at
// detection time and decides whether the daemon should act on it.
package device

import (
	"strings"

	"sield/internal/logging"
)

// Action is a hotplug action.
type Action string

const (
	ActionAdd    Action = "add"
	ActionChange Action = "change"
	ActionRemove Action = "remove"
)

// Device is an immutable snapshot. DevNode is the identity key.
type Device struct {
	DevNode      string
	DevPath      string
	DevType      string
	Subsystem    string
	Bus          string
	Manufacturer string
	Product      string
	Serial       string
	VendorID     string
	ProductID    string
	FSLabel      string
	FSType       string
	Major        string
	Minor        string
	USBParent    bool
}

// Event pairs a device with the action that produced it.
type Event struct {
	Device Device
	Action Action
}

// FromEnv builds a Device from udev properties.
func FromEnv(env map[string]string) Device {
	d := Device{
		DevNode:      devNode(env["DEVNAME"]),
		DevPath:      env["DEVPATH"],
		DevType:      env["DEVTYPE"],
		Subsystem:    env["SUBSYSTEM"],
		Bus:          env["ID_BUS"],
		Manufacturer: firstNonEmpty(decodeUdev(env["ID_VENDOR_ENC"]), env["ID_VENDOR"]),
		Product:      firstNonEmpty(decodeUdev(env["ID_MODEL_ENC"]), env["ID_MODEL"]),
		Serial:       firstNonEmpty(env["ID_SERIAL_SHORT"], env["ID_SERIAL"]),
		VendorID:     env["ID_VENDOR_ID"],
		ProductID:    env["ID_MODEL_ID"],
		FSLabel:      firstNonEmpty(decodeUdev(env["ID_FS_LABEL_ENC"]), env["ID_FS_LABEL"]),
		FSType:       env["ID_FS_TYPE"],
		Major:        env["MAJOR"],
		Minor:        env["MINOR"],
	}
	d.USBParent = d.Bus == "usb" || env["ID_USB_DRIVER"] != "" || strings.Contains(d.DevPath, "/usb")
	return d
}

// Key returns the identity used to deduplicate runs.
func (d Device) Key() string { return d.DevNode }

// Mountable reports whether the daemon should manage the device: its parent
// must be USB and its type must match mountableType.
func (d Device) Mountable(mountableType string) bool {
	return d.DevNode != "" && d.USBParent && d.DevType == mountableType
}

// DisplayName is "<manufacturer> <product>".
func (d Device) DisplayName() string {
	return strings.TrimSpace(orUnknown(d.Manufacturer) + " " + orUnknown(d.Product))
}

// LogAttrs returns the identifying fields logged on detection.
func (d Device) LogAttrs() []logging.Attr {
	return []logging.Attr{
		logging.String(logging.FieldDevice, d.DevNode),
		logging.String("devtype", d.DevType),
		logging.String("id_vendor", d.VendorID),
		logging.String("id_product", d.ProductID),
		logging.String("manufacturer", d.Manufacturer),
		logging.String("product", d.Product),
		logging.String("serial", d.Serial),
		logging.String("fs_type", d.FSType),
	}
}

func devNode(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || strings.HasPrefix(name, "/") {
		return name
	}
	return "/dev/" + name
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func orUnknown(value string) string {
	if value == "" {
		return "Unknown"
	}
	return value
}

// decodeUdev expands the \xNN escapes udev uses in *_ENC properties.
func decodeUdev(value string) string {
	if !strings.Contains(value, `\x`) {
		return value
	}
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		if value[i] == '\\' && i+3 < len(value) && value[i+1] == 'x' {
			if v, ok := hexByte(value[i+2], value[i+3]); ok {
				b.WriteByte(v)
				i += 3
				continue
			}
		}
		b.WriteByte(value[i])
	}
	return b.String()
}

func hexByte(hi, lo byte) (byte, bool) {
	h, ok1 := hexNibble(hi)
	l, ok2 := hexNibble(lo)
	return h<<4 | l, ok1 && ok2
}

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
