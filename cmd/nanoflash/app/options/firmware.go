package options

import (
	"fmt"
	"slices"

	"github.com/spf13/pflag"

	"cloupeer.io/nanoflash/internal/flasher/firmware"
	"cloupeer.io/nanoflash/internal/flasher/plan"
	genericoptions "cloupeer.io/nanoflash/pkg/options"
)

const (
	SourceS3  = "s3"
	SourceDir = "dir"
)

var _ genericoptions.IOptions = (*FirmwareOptions)(nil)

// FirmwareOptions selects the firmware package and where it comes from.
type FirmwareOptions struct {
	Source   string `json:"source" mapstructure:"source"`
	Dir      string `json:"dir" mapstructure:"dir"`
	CacheDir string `json:"cache-dir" mapstructure:"cache-dir"`

	Target             string `json:"target" mapstructure:"target"`
	Version            string `json:"version" mapstructure:"version"`
	Preview            bool   `json:"preview" mapstructure:"preview"`
	PartitionTableSize int    `json:"partition-table-size" mapstructure:"partition-table-size"`

	// DeploymentAddress overrides the address derived from the partition table.
	DeploymentAddress string `json:"deployment-address" mapstructure:"deployment-address"`
}

func NewFirmwareOptions() *FirmwareOptions {
	return &FirmwareOptions{Source: SourceS3}
}

func (o *FirmwareOptions) Validate() []error {
	errs := []error{}
	if !slices.Contains([]string{SourceS3, SourceDir}, o.Source) {
		errs = append(errs, fmt.Errorf("--firmware.source must be %q or %q, got %q", SourceS3, SourceDir, o.Source))
	}
	if o.Source == SourceDir && o.Dir == "" {
		errs = append(errs, fmt.Errorf("--firmware.dir is required with --firmware.source=%s", SourceDir))
	}
	if o.CacheDir == "" {
		errs = append(errs, fmt.Errorf("--firmware.cache-dir must not be empty"))
	}
	if o.PartitionTableSize != 0 {
		if _, ok := firmware.DeploymentAddresses[o.PartitionTableSize]; !ok {
			errs = append(errs, fmt.Errorf("--firmware.partition-table-size %d is not one of 2, 4, 8, 16", o.PartitionTableSize))
		}
	}
	if o.DeploymentAddress != "" {
		if _, err := plan.ParseAddress(o.DeploymentAddress); err != nil {
			errs = append(errs, fmt.Errorf("--firmware.deployment-address: %w", err))
		}
	}
	return errs
}

func (o *FirmwareOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Source, "firmware.source", o.Source, "Where firmware packages come from: 's3' or 'dir'.")
	fs.StringVar(&o.Dir, "firmware.dir", o.Dir, "Local package repository used with --firmware.source=dir.")
	fs.StringVar(&o.CacheDir, "firmware.cache-dir", o.CacheDir, "Directory caching downloaded package files.")
	fs.StringVar(&o.Target, "firmware.target", o.Target, "Firmware target name (defaults to ESP32_REV0).")
	fs.StringVar(&o.Version, "firmware.version", o.Version, "Firmware version (latest when empty).")
	fs.BoolVar(&o.Preview, "firmware.preview", o.Preview, "Use the preview channel.")
	fs.IntVar(&o.PartitionTableSize, "firmware.partition-table-size", o.PartitionTableSize,
		"Partition table size in MB (2, 4, 8 or 16); derived from the flash size when 0.")
	fs.StringVar(&o.DeploymentAddress, "firmware.deployment-address", o.DeploymentAddress,
		"Override the deployment partition address of the package (0x-prefixed hex).")
}

// ResolverOptions converts the override into firmware.ResolverOption values.
func (o *FirmwareOptions) ResolverOptions() []firmware.ResolverOption {
	if o.DeploymentAddress == "" {
		return nil
	}
	addr, err := plan.ParseAddress(o.DeploymentAddress)
	if err != nil {
		return nil
	}
	return []firmware.ResolverOption{firmware.WithDeploymentAddress(addr)}
}
