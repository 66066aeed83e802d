package firmware

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"cloupeer.io/nanoflash/internal/flasher/core"
)

func writeRepoFile(t *testing.T, root, key, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(key))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func seedPackage(t *testing.T, root, base, version string) {
	t.Helper()
	for _, name := range []string{BootloaderFile, PartitionTableFile(4), PartitionTableFile(8), RuntimeFile} {
		writeRepoFile(t, root, base+"/"+version+"/"+name, version+":"+name)
	}
}

func newRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	seedPackage(t, root, "ESP32_REV0", "1.8.0")
	seedPackage(t, root, "ESP32_REV0", "1.10.0")
	seedPackage(t, root, "ESP32_REV0", "2.0.0-rc.1")
	seedPackage(t, root, "preview/ESP32_REV0", "2.0.0-preview.3")
	writeRepoFile(t, root, "ESP32_REV0/README.md", "not a version")
	return root
}

type countingStore struct {
	Store
	fetches atomic.Int32
}

func (s *countingStore) Fetch(ctx context.Context, key string, w io.Writer) error {
	s.fetches.Add(1)
	return s.Store.Fetch(ctx, key, w)
}

func TestResolveLatestStable(t *testing.T) {
	r := NewResolver(NewDirStore(newRepo(t)), t.TempDir())

	pkg, err := r.Resolve(context.Background(), core.FirmwareRequest{})
	require.NoError(t, err)

	assert.Equal(t, core.DefaultTarget, pkg.Target)
	assert.Equal(t, "1.10.0", pkg.Version)
	assert.Equal(t, uint32(0x1B0000), pkg.DeploymentAddress)
	assert.Equal(t, 3, pkg.Plan.Len())

	boot, ok := pkg.Plan.Get(0x1000)
	require.True(t, ok)
	assert.Equal(t, pkg.BootloaderPath, boot)
	data, err := os.ReadFile(boot)
	require.NoError(t, err)
	assert.Equal(t, "1.10.0:bootloader.bin", string(data))

	table, ok := pkg.Plan.Get(0x8000)
	require.True(t, ok)
	assert.Equal(t, "partitions_4mb.bin", filepath.Base(table))
}

func TestResolvePreview(t *testing.T) {
	r := NewResolver(NewDirStore(newRepo(t)), t.TempDir())

	pkg, err := r.Resolve(context.Background(), core.FirmwareRequest{Preview: true, PartitionTableSize: 8})
	require.NoError(t, err)
	assert.Equal(t, "2.0.0-preview.3", pkg.Version)
	assert.Equal(t, uint32(0x2B0000), pkg.DeploymentAddress)
}

func TestResolveExplicitVersionAndOverride(t *testing.T) {
	r := NewResolver(NewDirStore(newRepo(t)), t.TempDir(), WithDeploymentAddress(0x300000))

	pkg, err := r.Resolve(context.Background(), core.FirmwareRequest{Version: "1.8.0"})
	require.NoError(t, err)
	assert.Equal(t, "1.8.0", pkg.Version)
	assert.Equal(t, uint32(0x300000), pkg.DeploymentAddress)
}

func TestResolveFailures(t *testing.T) {
	r := NewResolver(NewDirStore(newRepo(t)), t.TempDir())
	ctx := context.Background()

	tests := []struct {
		name string
		req  core.FirmwareRequest
	}{
		{name: "unknown target", req: core.FirmwareRequest{Target: "ESP32_S3"}},
		{name: "missing version", req: core.FirmwareRequest{Version: "9.9.9"}},
		{name: "unsupported table", req: core.FirmwareRequest{PartitionTableSize: 32}},
		{name: "missing table file", req: core.FirmwareRequest{PartitionTableSize: 16}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(ctx, tt.req)
			assert.Equal(t, core.PackageDownloadFailed, core.OutcomeOf(err))
		})
	}

	_, err := r.Resolve(ctx, core.FirmwareRequest{Target: "ESP32_S3"})
	assert.True(t, errors.Is(err, ErrNoVersion))
}

func TestResolveCancelled(t *testing.T) {
	r := NewResolver(NewDirStore(newRepo(t)), t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Resolve(ctx, core.FirmwareRequest{Version: "1.8.0"})
	assert.Equal(t, core.PackageDownloadFailed, core.OutcomeOf(err))
	assert.ErrorIs(t, err, context.Canceled)
}

// gatedStore holds every Fetch until release is closed and records the
// context state each fetch finished with.
type gatedStore struct {
	Store
	started chan struct{}
	release chan struct{}
	once    atomic.Bool

	fetches atomic.Int32
	ctxErrs chan error
}

func (s *gatedStore) Fetch(ctx context.Context, key string, w io.Writer) error {
	if s.once.CompareAndSwap(false, true) {
		close(s.started)
	}
	<-s.release
	s.fetches.Add(1)
	s.ctxErrs <- ctx.Err()
	return s.Store.Fetch(ctx, key, w)
}

func TestResolveDownloadSurvivesCallerCancel(t *testing.T) {
	store := &gatedStore{
		Store:   NewDirStore(newRepo(t)),
		started: make(chan struct{}),
		release: make(chan struct{}),
		ctxErrs: make(chan error, 3),
	}
	r := NewResolver(store, t.TempDir())
	req := core.FirmwareRequest{Version: "1.8.0"}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := r.Resolve(ctx, req)
		errc <- err
	}()

	<-store.started
	cancel()
	err := <-errc
	assert.Equal(t, core.PackageDownloadFailed, core.OutcomeOf(err))
	assert.ErrorIs(t, err, context.Canceled)

	close(store.release)
	pkg, err := r.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "1.8.0", pkg.Version)
	assert.Equal(t, int32(3), store.fetches.Load())
	for i := 0; i < 3; i++ {
		assert.NoError(t, <-store.ctxErrs, "shared download saw the caller's cancellation")
	}
}

func TestResolveUsesCacheAndSharesDownloads(t *testing.T) {
	store := &countingStore{Store: NewDirStore(newRepo(t))}
	r := NewResolver(store, t.TempDir())

	var g errgroup.Group
	for range 8 {
		g.Go(func() error {
			_, err := r.Resolve(context.Background(), core.FirmwareRequest{Version: "1.10.0"})
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(3), store.fetches.Load())

	_, err := r.Resolve(context.Background(), core.FirmwareRequest{Version: "1.10.0"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), store.fetches.Load(), "second run must be served from cache")
}

func TestDirStoreFetchStaysInRoot(t *testing.T) {
	root := t.TempDir()
	writeRepoFile(t, root, "a/b.bin", "x")
	s := NewDirStore(root)

	err := s.Fetch(context.Background(), "../../etc/passwd", io.Discard)
	assert.ErrorIs(t, err, ErrNotFound)

	keys, err := s.List(context.Background(), "missing/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
