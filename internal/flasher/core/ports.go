package core

import "context"

// Transport performs low-level operations against the device flash.
// Implementations own the wire protocol and any retry policy.
type Transport interface {
	// ReadFlash dumps size bytes from address 0 into the file at path.
	ReadFlash(ctx context.Context, path string, size int64) error

	// EraseAll erases the whole chip.
	EraseAll(ctx context.Context) error

	// EraseRange erases the given sector-aligned region.
	EraseRange(ctx context.Context, r EraseRange) error

	// WritePlan writes every partition of plan to its address.
	WritePlan(ctx context.Context, plan *PartitionPlan) error
}

// DeviceProvider reads the device descriptor, once per session.
type DeviceProvider interface {
	DeviceInfo(ctx context.Context) (*Device, error)
}

// FirmwareRequest selects a firmware package.
type FirmwareRequest struct {
	Target  string
	Version string
	Preview bool
	// PartitionTableSize in MB (2, 4, 8 or 16).
	PartitionTableSize int
}

// FirmwarePackage is a resolved package whose files are available locally.
type FirmwarePackage struct {
	Target            string
	Version           string
	Plan              *PartitionPlan
	DeploymentAddress uint32
	BootloaderPath    string
}

// FirmwareResolver locates, downloads and unpacks firmware packages.
// Resolve must honour ctx cancellation.
type FirmwareResolver interface {
	Resolve(ctx context.Context, req FirmwareRequest) (*FirmwarePackage, error)
}
