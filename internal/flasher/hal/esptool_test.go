package hal

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloupeer.io/nanoflash/internal/flasher/core"
)

const flashIDOutput = `esptool.py v4.7.0
Serial port /dev/ttyUSB0
Connecting....
Detecting chip type... Unsupported detection protocol, switching and trying again...
Connecting.....
Detecting chip type... ESP32
Chip is ESP32-D0WD-V3 (revision v3.0)
Features: WiFi, BT, Dual Core, 240MHz, VRef calibration in efuse, Coding Scheme None
Crystal is 40MHz
MAC: 24:0A:C4:12:34:56
Uploading stub...
Running stub...
Stub running...
Manufacturer: 20
Device: 4016
Detected flash size: 4MB
Hard resetting via RTS pin...
`

type scriptedRunner struct {
	calls   [][]string
	outputs [][]byte
	errs    []error
}

func (r *scriptedRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	i := len(r.calls)
	r.calls = append(r.calls, append([]string{name}, args...))
	var (
		out []byte
		err error
	)
	if i < len(r.outputs) {
		out = r.outputs[i]
	}
	if i < len(r.errs) {
		err = r.errs[i]
	}
	return out, err
}

func newTestEsptool(r Runner, retries uint64) *Esptool {
	return NewEsptool(EsptoolConfig{
		Path:          "esptool",
		Port:          "/dev/ttyUSB0",
		Baud:          115200,
		Retries:       retries,
		RetryInterval: time.Millisecond,
	}, WithRunner(r))
}

func TestParseFlashID(t *testing.T) {
	dev, err := ParseFlashID([]byte(flashIDOutput))
	require.NoError(t, err)

	assert.Equal(t, "ESP32", dev.ChipType)
	assert.Equal(t, "ESP32-D0WD-V3 (revision v3.0)", dev.ChipName)
	assert.Equal(t, "24:0a:c4:12:34:56", dev.MACAddress)
	assert.Equal(t, int64(4<<20), dev.FlashSize)
	assert.True(t, dev.HasFeature("BT"))
	rev, ok := dev.Revision()
	assert.True(t, ok)
	assert.Equal(t, 3, rev)
}

func TestParseFlashIDFallsBackToChipName(t *testing.T) {
	out := "Chip is ESP32-S3 (QFN56) (revision v0.1)\nMAC: 7c:df:a1:00:00:01\n"
	dev, err := ParseFlashID([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, "ESP32S3", dev.ChipType)
}

func TestParseFlashIDIncomplete(t *testing.T) {
	_, err := ParseFlashID([]byte("A fatal error occurred: Failed to connect to ESP32\n"))
	assert.Error(t, err)
}

func TestEsptoolCommands(t *testing.T) {
	r := &scriptedRunner{}
	e := newTestEsptool(r, 0)
	ctx := context.Background()

	require.NoError(t, e.ReadFlash(ctx, "/tmp/dump.bin", 4<<20))
	require.NoError(t, e.EraseAll(ctx))
	require.NoError(t, e.EraseRange(ctx, core.EraseRange{Address: 0x1B0000, Length: 0x3000}))
	require.NoError(t, e.WritePlan(ctx, core.NewPartitionPlan(
		core.Partition{Address: 0x10000, Path: "nanoCLR.bin"},
		core.Partition{Address: 0x1000, Path: "bootloader.bin"},
	)))

	base := []string{"esptool", "--chip", "esp32", "--port", "/dev/ttyUSB0", "--baud", "115200"}
	want := [][]string{
		append(append([]string{}, base...), "read_flash", "0", "4194304", "/tmp/dump.bin"),
		append(append([]string{}, base...), "erase_flash"),
		append(append([]string{}, base...), "erase_region", "0x1B0000", "0x3000"),
		append(append([]string{}, base...), "write_flash", "-z", "0x1000", "bootloader.bin", "0x10000", "nanoCLR.bin"),
	}
	assert.Equal(t, want, r.calls)
}

func TestEsptoolRetries(t *testing.T) {
	r := &scriptedRunner{
		outputs: [][]byte{[]byte("A fatal error occurred: Timed out"), nil},
		errs:    []error{errors.New("exit status 2"), nil},
	}
	e := newTestEsptool(r, 2)

	require.NoError(t, e.EraseAll(context.Background()))
	assert.Len(t, r.calls, 2)
}

func TestEsptoolFailureOutcome(t *testing.T) {
	fail := errors.New("exit status 2")
	r := &scriptedRunner{
		outputs: [][]byte{[]byte("x"), []byte("A fatal error occurred: Timed out")},
		errs:    []error{fail, fail},
	}
	e := newTestEsptool(r, 1)

	err := e.WritePlan(context.Background(), core.NewPartitionPlan(core.Partition{Address: 0x10000, Path: "a.bin"}))
	assert.Equal(t, core.WriteFailed, core.OutcomeOf(err))
	assert.ErrorIs(t, err, fail)
	assert.ErrorContains(t, err, "Timed out")
	assert.Len(t, r.calls, 2)
}

func TestEsptoolMissingExecutable(t *testing.T) {
	r := &scriptedRunner{errs: []error{&exec.Error{Name: "esptool", Err: exec.ErrNotFound}}}
	e := newTestEsptool(r, 3)

	_, err := e.DeviceInfo(context.Background())
	assert.Equal(t, core.DeviceUnavailable, core.OutcomeOf(err))
	assert.Len(t, r.calls, 1, "a missing executable must not be retried")
}

func TestEsptoolDeviceInfo(t *testing.T) {
	r := &scriptedRunner{outputs: [][]byte{[]byte(flashIDOutput)}}
	dev, err := newTestEsptool(r, 0).DeviceInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "240AC4123456", dev.MACHex())
	assert.Equal(t, "flash_id", r.calls[0][len(r.calls[0])-1])
}
