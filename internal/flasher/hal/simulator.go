package hal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"

	"cloupeer.io/nanoflash/internal/flasher/core"
	"cloupeer.io/nanoflash/pkg/log"
)

const erasedByte = 0xFF

// SimulatedDevice is the descriptor reported by a Simulator unless one is given.
func SimulatedDevice() *core.Device {
	return &core.Device{
		ChipType:   core.ChipFamilyESP32,
		ChipName:   "ESP32-D0WD-V3 (revision v3.0)",
		FlashSize:  4 << 20,
		MACAddress: "02:00:00:00:00:01",
		Features:   []string{"WiFi", "BT", "Dual Core", "240MHz"},
	}
}

// Simulator is a device whose flash is a file on disk. Erased bytes read
// back as 0xFF. Like esptool write_flash, a write replaces the bytes it
// covers without a separate erase.
type Simulator struct {
	mu    sync.Mutex
	image string
	dev   core.Device
}

// NewSimulator opens (or creates, fully erased) the flash image flash.bin
// under dir. A nil dev selects SimulatedDevice.
func NewSimulator(dir string, dev *core.Device) (*Simulator, error) {
	if dev == nil {
		dev = SimulatedDevice()
	}
	if dev.FlashSize <= 0 {
		return nil, fmt.Errorf("simulated flash size must be positive, got %d", dev.FlashSize)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &Simulator{image: filepath.Join(dir, "flash.bin"), dev: *dev}
	info, err := os.Stat(s.image)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := renameio.WriteFile(s.image, bytes.Repeat([]byte{erasedByte}, int(dev.FlashSize)), 0o644); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case info.Size() != dev.FlashSize:
		return nil, fmt.Errorf("flash image %s is %d bytes, device flash is %d", s.image, info.Size(), dev.FlashSize)
	}
	return s, nil
}

// ImagePath returns the backing flash image.
func (s *Simulator) ImagePath() string { return s.image }

func (s *Simulator) DeviceInfo(ctx context.Context) (*core.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.Wrap(core.DeviceUnavailable, "device info", err)
	}
	dev := s.dev
	dev.Features = append([]string(nil), s.dev.Features...)
	return &dev, nil
}

func (s *Simulator) ReadFlash(ctx context.Context, path string, size int64) error {
	const op = "read flash"
	if err := ctx.Err(); err != nil {
		return core.Wrap(core.ReadFailed, op, err)
	}
	if size <= 0 || size > s.dev.FlashSize {
		return core.Errorf(core.ReadFailed, op, "size %d outside flash of %d bytes", size, s.dev.FlashSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	src, err := os.Open(s.image)
	if err != nil {
		return core.Wrap(core.ReadFailed, op, err)
	}
	defer src.Close()

	dst, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return core.Wrap(core.ReadFailed, op, err)
	}
	defer func() { _ = dst.Cleanup() }()

	if _, err := io.CopyN(dst, src, size); err != nil {
		return core.Wrap(core.ReadFailed, op, err)
	}
	if err := dst.CloseAtomicallyReplace(); err != nil {
		return core.Wrap(core.ReadFailed, op, err)
	}
	log.FromContext(ctx).Debug("Simulator read flash", "path", path, "size", size)
	return nil
}

func (s *Simulator) EraseAll(ctx context.Context) error {
	return s.fill(ctx, core.EraseRange{Address: 0, Length: uint32(s.dev.FlashSize)})
}

func (s *Simulator) EraseRange(ctx context.Context, r core.EraseRange) error {
	if r.Address%core.SectorSize != 0 || r.Length%core.SectorSize != 0 {
		return core.Errorf(core.EraseFailed, "erase", "range %s is not aligned to %d-byte sectors", r, core.SectorSize)
	}
	return s.fill(ctx, r)
}

func (s *Simulator) fill(ctx context.Context, r core.EraseRange) error {
	const op = "erase"
	if int64(r.Address)+int64(r.Length) > s.dev.FlashSize {
		return core.Errorf(core.EraseFailed, op, "range %s exceeds flash of %d bytes", r, s.dev.FlashSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.image, os.O_WRONLY, 0)
	if err != nil {
		return core.Wrap(core.EraseFailed, op, err)
	}
	defer f.Close()

	sector := bytes.Repeat([]byte{erasedByte}, core.SectorSize)
	for off := int64(r.Address); off < int64(r.Address)+int64(r.Length); off += core.SectorSize {
		n := min(int64(core.SectorSize), int64(r.Address)+int64(r.Length)-off)
		if _, err := f.WriteAt(sector[:n], off); err != nil {
			return core.Wrap(core.EraseFailed, op, err)
		}
	}
	if err := f.Sync(); err != nil {
		return core.Wrap(core.EraseFailed, op, err)
	}
	log.FromContext(ctx).Debug("Simulator erased", "range", r.String())
	return nil
}

func (s *Simulator) WritePlan(ctx context.Context, plan *core.PartitionPlan) error {
	const op = "write"

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.image, os.O_WRONLY, 0)
	if err != nil {
		return core.Wrap(core.WriteFailed, op, err)
	}
	defer f.Close()

	for _, p := range plan.Partitions() {
		data, err := os.ReadFile(p.Path)
		if err != nil {
			return core.Wrap(core.WriteFailed, op, err)
		}
		if int64(p.Address)+int64(len(data)) > s.dev.FlashSize {
			return core.Errorf(core.WriteFailed, op, "%s at 0x%X overruns flash of %d bytes", p.Path, p.Address, s.dev.FlashSize)
		}
		if _, err := f.WriteAt(data, int64(p.Address)); err != nil {
			return core.Wrap(core.WriteFailed, op, err)
		}
		log.FromContext(ctx).Debug("Simulator wrote partition", "address", log.Hex(p.Address), "bytes", len(data))
	}
	if err := f.Sync(); err != nil {
		return core.Wrap(core.WriteFailed, op, err)
	}
	return nil
}
