package hal

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloupeer.io/nanoflash/internal/flasher/core"
)

func smallDevice() *core.Device {
	dev := SimulatedDevice()
	dev.FlashSize = 64 << 10
	return dev
}

func TestSimulatorStartsErased(t *testing.T) {
	s, err := NewSimulator(t.TempDir(), smallDevice())
	require.NoError(t, err)

	data, err := os.ReadFile(s.ImagePath())
	require.NoError(t, err)
	assert.Len(t, data, 64<<10)
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 64<<10), data)
}

func TestSimulatorWriteEraseRead(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSimulator(filepath.Join(dir, "dev"), smallDevice())
	require.NoError(t, err)
	ctx := context.Background()

	app := filepath.Join(dir, "app.bin")
	require.NoError(t, os.WriteFile(app, []byte{1, 2, 3, 4}, 0o644))
	boot := filepath.Join(dir, "boot.bin")
	require.NoError(t, os.WriteFile(boot, []byte{9, 9}, 0o644))

	require.NoError(t, s.WritePlan(ctx, core.NewPartitionPlan(
		core.Partition{Address: 0x1000, Path: boot},
		core.Partition{Address: 0x2000, Path: app},
	)))

	out := filepath.Join(dir, "dump.bin")
	require.NoError(t, s.ReadFlash(ctx, out, 0x3000))
	dump, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Len(t, dump, 0x3000)
	assert.Equal(t, []byte{9, 9, 0xFF}, dump[0x1000:0x1003])
	assert.Equal(t, []byte{1, 2, 3, 4, 0xFF}, dump[0x2000:0x2005])

	require.NoError(t, s.EraseRange(ctx, core.EraseRange{Address: 0x2000, Length: 0x1000}))
	require.NoError(t, s.ReadFlash(ctx, out, 0x3000))
	dump, err = os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, byte(9), dump[0x1000], "erase must leave other sectors alone")
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 0x1000), dump[0x2000:])

	require.NoError(t, s.EraseAll(ctx))
	require.NoError(t, s.ReadFlash(ctx, out, 0x2000))
	dump, err = os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 0x2000), dump)
}

func TestSimulatorRejects(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSimulator(dir, smallDevice())
	require.NoError(t, err)
	ctx := context.Background()

	err = s.EraseRange(ctx, core.EraseRange{Address: 0x1001, Length: 0x1000})
	assert.Equal(t, core.EraseFailed, core.OutcomeOf(err))

	err = s.EraseRange(ctx, core.EraseRange{Address: 0xF000, Length: 0x2000})
	assert.Equal(t, core.EraseFailed, core.OutcomeOf(err))

	big := filepath.Join(dir, "big.bin")
	require.NoError(t, os.WriteFile(big, make([]byte, 0x2000), 0o644))
	err = s.WritePlan(ctx, core.NewPartitionPlan(core.Partition{Address: 0xF000, Path: big}))
	assert.Equal(t, core.WriteFailed, core.OutcomeOf(err))

	err = s.WritePlan(ctx, core.NewPartitionPlan(core.Partition{Address: 0x1000, Path: filepath.Join(dir, "missing.bin")}))
	assert.Equal(t, core.WriteFailed, core.OutcomeOf(err))

	err = s.ReadFlash(ctx, filepath.Join(dir, "dump.bin"), 1<<20)
	assert.Equal(t, core.ReadFailed, core.OutcomeOf(err))
}

func TestSimulatorReopenChecksSize(t *testing.T) {
	dir := t.TempDir()
	_, err := NewSimulator(dir, smallDevice())
	require.NoError(t, err)

	dev := smallDevice()
	dev.FlashSize = 128 << 10
	_, err = NewSimulator(dir, dev)
	assert.Error(t, err)
}

func TestSimulatorDeviceInfoIsCopy(t *testing.T) {
	s, err := NewSimulator(t.TempDir(), smallDevice())
	require.NoError(t, err)

	dev, err := s.DeviceInfo(context.Background())
	require.NoError(t, err)
	dev.Features[0] = "changed"

	again, err := s.DeviceInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "WiFi", again.Features[0])
}
