package options

import (
	"os"
	"path/filepath"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"cloupeer.io/nanoflash/pkg/log"
	"cloupeer.io/nanoflash/pkg/options"
)

// Options holds every setting shared by the nanoflash commands.
type Options struct {
	Device   *DeviceOptions       `json:"device" mapstructure:"device"`
	Firmware *FirmwareOptions     `json:"firmware" mapstructure:"firmware"`
	S3       *options.S3Options   `json:"s3" mapstructure:"s3"`
	Mqtt     *options.MqttOptions `json:"mqtt" mapstructure:"mqtt"`
	Http     *options.HttpOptions `json:"http" mapstructure:"http"`
	Log      *log.Options         `json:"log" mapstructure:"log"`

	// MetricsFile receives a Prometheus textfile dump when a command ends.
	MetricsFile string `json:"metrics-file" mapstructure:"metrics-file"`
}

func NewOptions() *Options {
	return &Options{
		Device:   NewDeviceOptions(),
		Firmware: NewFirmwareOptions(),
		S3:       options.NewS3Options(),
		Mqtt:     options.NewMqttOptions(),
		Http:     options.NewHttpOptions(),
		Log:      log.NewOptions(),
	}
}

func (o *Options) Flags() (fss cliflag.NamedFlagSets) {
	o.Device.AddFlags(fss.FlagSet("device"))
	o.Firmware.AddFlags(fss.FlagSet("firmware"))
	o.S3.AddFlags(fss.FlagSet("s3"))
	o.Mqtt.AddFlags(fss.FlagSet("mqtt"))
	o.Http.AddFlags(fss.FlagSet("http"))
	fss.FlagSet("metrics").StringVar(&o.MetricsFile, "metrics-file", o.MetricsFile,
		"Write workflow metrics in the Prometheus textfile format to this path.")
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

// Complete fills in directories derived from the user cache directory.
func (o *Options) Complete() error {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	base = filepath.Join(base, "nanoflash")

	if o.Firmware.CacheDir == "" {
		o.Firmware.CacheDir = filepath.Join(base, "firmware")
	}
	if o.Device.SimulatorDir == "" {
		o.Device.SimulatorDir = filepath.Join(base, "simulator")
	}
	return nil
}

func (o *Options) Validate() error {
	errs := []error{}
	errs = append(errs, o.Device.Validate()...)
	errs = append(errs, o.Firmware.Validate()...)
	if o.Firmware.Source == SourceS3 {
		errs = append(errs, o.S3.Validate()...)
	}
	errs = append(errs, o.Mqtt.Validate()...)
	errs = append(errs, o.Http.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}
