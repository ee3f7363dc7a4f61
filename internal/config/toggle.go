package config

// Toggle is the canonical tri-state form of a policy switch.
type Toggle int8

const (
	// ToggleUnset means the file did not mention the switch.
	ToggleUnset Toggle = iota
	ToggleOn
	ToggleOff
)

// ToggleOf converts an optional TOML boolean into a Toggle.
func ToggleOf(value *bool) Toggle {
	switch {
	case value == nil:
		return ToggleUnset
	case *value:
		return ToggleOn
	default:
		return ToggleOff
	}
}

// Or resolves the toggle, using def when unset.
func (t Toggle) Or(def bool) bool {
	switch t {
	case ToggleOn:
		return true
	case ToggleOff:
		return false
	default:
		return def
	}
}

func (t Toggle) String() string {
	switch t {
	case ToggleOn:
		return "on"
	case ToggleOff:
		return "off"
	default:
		return "unset"
	}
}

// Bool returns a pointer suitable for the optional TOML fields.
func Bool(value bool) *bool {
	return &value
}
