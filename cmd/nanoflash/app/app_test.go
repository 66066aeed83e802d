package app

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloupeer.io/nanoflash/cmd/nanoflash/app/options"
	"cloupeer.io/nanoflash/internal/flasher/compat"
	"cloupeer.io/nanoflash/internal/flasher/core"
	"cloupeer.io/nanoflash/internal/flasher/hal"
)

func seedRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, name := range []string{"bootloader.bin", "partitions_4mb.bin", "nanoCLR.bin"} {
		p := filepath.Join(root, "ESP32_REV0", "1.10.0", name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, bytes.Repeat([]byte{0xA5}, 5000), 0o644))
	}
	return root
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	base := []string{
		"--device.simulate",
		"--device.simulator-dir", filepath.Join(t.TempDir(), "sim"),
		"--firmware.source", "dir",
		"--firmware.dir", seedRepo(t),
		"--firmware.cache-dir", t.TempDir(),
		"--log.level", "error",
	}
	cmd := NewNanoflashCommand(context.Background())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(base, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestUpdateOnSimulator(t *testing.T) {
	_, err := execute(t, "update")
	assert.NoError(t, err)
}

func TestBackupOnSimulator(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "backup", "--dir", dir)
	require.NoError(t, err)

	path := strings.TrimSpace(out)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "ESP32_0x020000000001_"))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(4<<20), info.Size())
}

func TestDeployMissingApplicationExitCode(t *testing.T) {
	_, err := execute(t, "deploy", "--app", filepath.Join(t.TempDir(), "missing.bin"), "--address", "0x1B0000")
	require.Error(t, err)
	assert.Equal(t, core.ApplicationFileNotFound.ExitCode(), ExitCode(err))
}

func TestDeployApplication(t *testing.T) {
	app := filepath.Join(t.TempDir(), "app.bin")
	require.NoError(t, os.WriteFile(app, []byte("application"), 0o644))

	_, err := execute(t, "deploy", "--app", app, "--address", "0x1B0000")
	assert.NoError(t, err)
}

func TestDeployNeedsImage(t *testing.T) {
	_, err := execute(t, "deploy")
	require.Error(t, err)
	assert.Equal(t, 1, ExitCode(err))
}

func TestInvalidOptions(t *testing.T) {
	_, err := execute(t, "--firmware.partition-table-size", "3", "info")
	assert.ErrorContains(t, err, "--firmware.partition-table-size")
}

func TestEnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("NANOFLASH_FIRMWARE_TARGET", "ESP32_BLE_REV3")
	out, err := execute(t, "info")
	require.NoError(t, err)
	assert.Contains(t, out, "ESP32_BLE_REV3")
}

func TestInfoOnSimulator(t *testing.T) {
	out, err := execute(t, "info")
	require.NoError(t, err)
	assert.Contains(t, out, "ESP32-D0WD-V3")
	assert.Contains(t, out, "COMPATIBLE:")
}

func TestNewResolverChecksBucket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	opts := options.NewOptions()
	opts.Firmware.Source = options.SourceS3
	opts.S3.Endpoint = strings.TrimPrefix(srv.URL, "http://")
	opts.S3.UseSSL = false
	opts.S3.BucketName = "firmware"

	_, err := newResolver(context.Background(), opts)
	assert.ErrorContains(t, err, `bucket "firmware" does not exist`)
}

func TestRenderDeviceWarnings(t *testing.T) {
	dev := hal.SimulatedDevice()
	dev.ChipName = "ESP32-D0WD (revision v1.0)"

	var buf bytes.Buffer
	require.NoError(t, renderDevice(&buf, dev, "ESP32_REV3", compat.Validate(dev, "ESP32_REV3")))
	assert.Contains(t, buf.String(), string(compat.RevisionMismatch))
	assert.Contains(t, buf.String(), "ESP32_REV0")
	assert.NotContains(t, buf.String(), "COMPATIBLE:")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("flag parse")))
	assert.Equal(t, core.WriteFailed.ExitCode(), ExitCode(core.Errorf(core.WriteFailed, "write", "x")))
}

func TestRouter(t *testing.T) {
	srv := httptest.NewServer(newRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/healthz", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestWatchFileRedeploysOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.bin")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	runs := make(chan struct{}, 4)
	done := make(chan error, 1)
	go func() {
		done <- watchFile(ctx, path, func(context.Context) { runs <- struct{}{} })
	}()

	<-runs
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))
	<-runs

	cancel()
	assert.NoError(t, <-done)
}
