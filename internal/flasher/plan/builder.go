// Package plan assembles the address to file mapping written to the device.
package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cloupeer.io/nanoflash/internal/flasher/core"
)

// Well-known addresses of an ESP32 firmware layout.
const (
	BootloaderAddress     uint32 = 0x1000
	PartitionTableAddress uint32 = 0x8000
	RuntimeAddress        uint32 = 0x10000
)

// RuntimeExtension is the only accepted extension for a runtime override.
const RuntimeExtension = ".bin"

const op = "build partition plan"

// Request collects the inputs of Build.
type Request struct {
	// UpdateFirmware selects a full firmware update; false means deploy-only.
	UpdateFirmware bool

	// Package is the resolved firmware package. Its plan is the base layout
	// when UpdateFirmware is set, and its deployment address is used for the
	// application in that mode.
	Package *core.FirmwarePackage

	// RuntimePath optionally replaces the runtime image at RuntimeAddress.
	RuntimePath string

	// ApplicationPath optionally places an application image.
	ApplicationPath string

	// DeploymentAddress is the "0x"-prefixed hex address of the application in
	// deploy-only mode.
	DeploymentAddress string
}

// Validate checks the local inputs of req: the runtime and application
// images and, in deploy-only mode, the deployment address. It needs no
// firmware package, so callers can run it before resolving one.
func (req Request) Validate() error {
	if req.RuntimePath != "" {
		if err := requireFile(req.RuntimePath, core.RuntimeFileNotFound); err != nil {
			return err
		}
		if !strings.EqualFold(filepath.Ext(req.RuntimePath), RuntimeExtension) {
			return core.Errorf(core.RuntimeFileWrongExtension, op,
				"runtime image %q must have the %s extension", req.RuntimePath, RuntimeExtension)
		}
	}

	if req.ApplicationPath != "" {
		if err := requireFile(req.ApplicationPath, core.ApplicationFileNotFound); err != nil {
			return err
		}
		if !req.UpdateFirmware {
			if _, err := ParseAddress(req.DeploymentAddress); err != nil {
				return core.Wrap(core.InvalidDeploymentAddress, op, err)
			}
		}
	}
	return nil
}

// Build assembles the final plan: package layout, then runtime override, then
// application placement, later sources overriding earlier ones.
//
// In deploy-only mode the application placement replaces the whole plan with
// a single entry, so a runtime override given alongside an application is
// not written.
func Build(req Request) (*core.PartitionPlan, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	plan := core.NewPartitionPlan()
	if req.UpdateFirmware && req.Package != nil {
		plan = req.Package.Plan.Clone()
	}

	if req.RuntimePath != "" {
		plan.Remove(RuntimeAddress)
		plan.Set(RuntimeAddress, req.RuntimePath)
	}

	if req.ApplicationPath != "" {
		if !req.UpdateFirmware {
			address, _ := ParseAddress(req.DeploymentAddress)
			plan = core.NewPartitionPlan(core.Partition{Address: address, Path: req.ApplicationPath})
		} else {
			if req.Package == nil {
				return nil, core.Errorf(core.PackageDownloadFailed, op, "no firmware package to take the deployment address from")
			}
			plan.Set(req.Package.DeploymentAddress, req.ApplicationPath)
		}
	}

	return plan, nil
}

// ParseAddress parses a "0x"-prefixed hexadecimal flash address.
func ParseAddress(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if len(s) < 3 || (s[:2] != "0x" && s[:2] != "0X") {
		return 0, fmt.Errorf("address %q must be 0x-prefixed hexadecimal", s)
	}
	v, err := strconv.ParseUint(s[2:], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("address %q is not a 32-bit hexadecimal value: %w", s, err)
	}
	return uint32(v), nil
}

func requireFile(path string, outcome core.Outcome) error {
	info, err := os.Stat(path)
	if err != nil {
		return core.Wrap(outcome, op, err)
	}
	if info.IsDir() {
		return core.Errorf(outcome, op, "%q is a directory", path)
	}
	return nil
}
