package options

import (
	"errors"
	"time"

	"github.com/spf13/pflag"

	"cloupeer.io/nanoflash/internal/flasher/hal"
	genericoptions "cloupeer.io/nanoflash/pkg/options"
)

var _ genericoptions.IOptions = (*DeviceOptions)(nil)

// DeviceOptions selects the board and how it is reached.
type DeviceOptions struct {
	Port    string `json:"port" mapstructure:"port"`
	Baud    int    `json:"baud" mapstructure:"baud"`
	Esptool string `json:"esptool" mapstructure:"esptool"`
	Retries uint64 `json:"retries" mapstructure:"retries"`

	// Simulate replaces the board with a flash image under SimulatorDir.
	Simulate     bool   `json:"simulate" mapstructure:"simulate"`
	SimulatorDir string `json:"simulator-dir" mapstructure:"simulator-dir"`
}

func NewDeviceOptions() *DeviceOptions {
	return &DeviceOptions{
		Baud:    921600,
		Esptool: "esptool.py",
		Retries: 2,
	}
}

func (o *DeviceOptions) Validate() []error {
	errs := []error{}
	if o.Baud <= 0 {
		errs = append(errs, errors.New("--device.baud must be positive"))
	}
	if !o.Simulate && o.Esptool == "" {
		errs = append(errs, errors.New("--device.esptool must not be empty"))
	}
	if o.Simulate && o.SimulatorDir == "" {
		errs = append(errs, errors.New("--device.simulator-dir must not be empty when simulating"))
	}
	return errs
}

func (o *DeviceOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Port, "device.port", o.Port, "Serial port of the device (esptool auto-detects when empty).")
	fs.IntVar(&o.Baud, "device.baud", o.Baud, "Serial baud rate.")
	fs.StringVar(&o.Esptool, "device.esptool", o.Esptool, "Path of the esptool executable.")
	fs.Uint64Var(&o.Retries, "device.retries", o.Retries, "Extra attempts for a failed esptool invocation.")
	fs.BoolVar(&o.Simulate, "device.simulate", o.Simulate, "Flash a simulated device backed by a file instead of real hardware.")
	fs.StringVar(&o.SimulatorDir, "device.simulator-dir", o.SimulatorDir, "Directory holding the simulated flash image.")
}

// EsptoolConfig converts the options for hal.NewEsptool.
func (o *DeviceOptions) EsptoolConfig() hal.EsptoolConfig {
	return hal.EsptoolConfig{
		Path:          o.Esptool,
		Port:          o.Port,
		Baud:          o.Baud,
		Retries:       o.Retries,
		RetryInterval: time.Second,
	}
}
