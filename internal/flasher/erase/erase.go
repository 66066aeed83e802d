// Package erase decides how much of the flash a workflow clears before writing.
package erase

import (
	"fmt"
	"os"

	"cloupeer.io/nanoflash/internal/flasher/core"
)

const op = "compute erase range"

// Request is the erase the orchestrator issues. Exactly one of Full, Skip or
// a non-zero Range applies.
type Request struct {
	Full  bool
	Skip  bool
	Range core.EraseRange
}

func (r Request) String() string {
	switch {
	case r.Full:
		return "full chip"
	case r.Skip:
		return "none"
	default:
		return r.Range.String()
	}
}

// RoundUp rounds n up to the next multiple of granularity.
func RoundUp(n, granularity uint32) uint32 {
	if granularity == 0 {
		return n
	}
	return (n + granularity - 1) / granularity * granularity
}

// Compute returns the erase for a workflow. A firmware update clears the
// whole chip. A deploy-only run that places an application clears the
// deployment region, sized by the package bootloader image rounded up to
// core.SectorSize, so the bootloader and runtime survive. A deploy-only run
// without an application has nothing to clear.
func Compute(updateFirmware, hasApplication bool, bootloaderPath string, deploymentAddress uint32) (Request, error) {
	if updateFirmware {
		return Request{Full: true}, nil
	}
	if !hasApplication {
		return Request{Skip: true}, nil
	}

	info, err := os.Stat(bootloaderPath)
	if err != nil {
		return Request{}, core.Wrap(core.EraseFailed, op, err)
	}
	size := info.Size()
	if size <= 0 || size > int64(^uint32(0)-core.SectorSize) {
		return Request{}, core.Errorf(core.EraseFailed, op, "bootloader image %q has unusable size %d", bootloaderPath, size)
	}

	return Request{Range: core.EraseRange{
		Address: deploymentAddress,
		Length:  RoundUp(uint32(size), core.SectorSize),
	}}, nil
}

// Describe renders r for progress messages.
func Describe(r Request) string {
	return fmt.Sprintf("erase %s", r)
}
