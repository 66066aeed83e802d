// Package hal provides the device-facing implementations of core.Transport
// and core.DeviceProvider: one driving the esptool executable, one backed by
// a flash image on disk.
package hal

import "cloupeer.io/nanoflash/internal/flasher/core"

// Device is a connected (or simulated) board.
type Device interface {
	core.Transport
	core.DeviceProvider
}

var (
	_ Device = (*Esptool)(nil)
	_ Device = (*Simulator)(nil)
)
