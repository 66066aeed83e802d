package core

import (
	"regexp"
	"strconv"
	"strings"
)

// ChipFamilyESP32 is the only chip family the update workflow targets.
const ChipFamilyESP32 = "ESP32"

// DefaultTarget replaces an empty target name.
const DefaultTarget = "ESP32_REV0"

var revisionPattern = regexp.MustCompile(`(?i)revision\s+v?(\d+)`)

// Device is a read-only snapshot of the connected chip, taken once per session.
type Device struct {
	// ChipType is the family tag, e.g. "ESP32".
	ChipType string `json:"chipType"`
	// ChipName is the full name including revision, e.g. "ESP32-D0WD-V3 (revision v3.0)".
	ChipName string `json:"chipName"`
	// FlashSize in bytes.
	FlashSize int64 `json:"flashSize"`
	// MACAddress as reported by the device, e.g. "24:0a:c4:12:34:56".
	MACAddress string `json:"macAddress"`
	// Features as reported by the device, e.g. ["WiFi", "BT", "Dual Core"].
	Features []string `json:"features,omitempty"`
}

// HasFeature reports whether the feature list contains name, ignoring case.
func (d *Device) HasFeature(name string) bool {
	for _, f := range d.Features {
		if strings.EqualFold(strings.TrimSpace(f), name) {
			return true
		}
	}
	return false
}

// Revision extracts the major silicon revision from ChipName.
func (d *Device) Revision() (int, bool) {
	m := revisionPattern.FindStringSubmatch(d.ChipName)
	if m == nil {
		return 0, false
	}
	rev, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return rev, true
}

// MACHex returns the MAC address as upper-case hex digits without separators.
func (d *Device) MACHex() string {
	var b strings.Builder
	for _, r := range d.MACAddress {
		switch {
		case r >= '0' && r <= '9', r >= 'A' && r <= 'F':
			b.WriteRune(r)
		case r >= 'a' && r <= 'f':
			b.WriteRune(r - 'a' + 'A')
		}
	}
	return b.String()
}

// ResolveTarget substitutes DefaultTarget for an empty target name.
func ResolveTarget(target string) string {
	if t := strings.TrimSpace(target); t != "" {
		return t
	}
	return DefaultTarget
}
