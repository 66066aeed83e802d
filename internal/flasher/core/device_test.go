package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeviceRevision(t *testing.T) {
	tests := []struct {
		chipName string
		want     int
		ok       bool
	}{
		{"ESP32-D0WD-V3 (revision v3.0)", 3, true},
		{"ESP32-D0WDQ6 (revision 1)", 1, true},
		{"ESP32-D0WD (revision v1.1)", 1, true},
		{"ESP32-PICO-D4", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.chipName, func(t *testing.T) {
			d := &Device{ChipName: tt.chipName}
			got, ok := d.Revision()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeviceHasFeature(t *testing.T) {
	d := &Device{Features: []string{"WiFi", " BT", "Dual Core"}}
	assert.True(t, d.HasFeature("bt"))
	assert.True(t, d.HasFeature("WiFi"))
	assert.False(t, d.HasFeature("BLE"))
}

func TestDeviceMACHex(t *testing.T) {
	assert.Equal(t, "240AC4123456", (&Device{MACAddress: "24:0a:c4:12:34:56"}).MACHex())
	assert.Equal(t, "240AC4123456", (&Device{MACAddress: "24-0A-C4-12-34-56"}).MACHex())
	assert.Empty(t, (&Device{}).MACHex())
}

func TestResolveTarget(t *testing.T) {
	assert.Equal(t, DefaultTarget, ResolveTarget(""))
	assert.Equal(t, DefaultTarget, ResolveTarget("  "))
	assert.Equal(t, "ESP32_BLE_REV0", ResolveTarget("ESP32_BLE_REV0"))
}
