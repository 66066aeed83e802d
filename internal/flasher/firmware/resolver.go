package firmware

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/blang/semver/v4"
	"github.com/google/renameio/v2"
	"golang.org/x/sync/singleflight"

	"cloupeer.io/nanoflash/internal/flasher/core"
	"cloupeer.io/nanoflash/internal/flasher/plan"
	"cloupeer.io/nanoflash/internal/pkg/metrics"
	"cloupeer.io/nanoflash/pkg/log"
)

// Package file names inside <[preview/]target>/<version>/.
const (
	BootloaderFile = "bootloader.bin"
	RuntimeFile    = "nanoCLR.bin"
	previewPrefix  = "preview/"

	DefaultPartitionTableSize = 4
)

// DeploymentAddresses maps a partition table size in MB to the address of
// its deployment partition.
var DeploymentAddresses = map[int]uint32{
	2:  0x110000,
	4:  0x1B0000,
	8:  0x2B0000,
	16: 0x2B0000,
}

// PartitionTableFile is the partition table image for a flash of sizeMB.
func PartitionTableFile(sizeMB int) string {
	return "partitions_" + strconv.Itoa(sizeMB) + "mb.bin"
}

// ErrNoVersion means the store holds no usable version for a target.
var ErrNoVersion = errors.New("no firmware version available")

const op = "resolve firmware"

// Resolver implements core.FirmwareResolver over a Store. Files are cached
// under a local directory and reused on later runs; concurrent requests for
// the same package share one download.
type Resolver struct {
	store    Store
	cacheDir string

	deploymentAddress uint32
	group             singleflight.Group
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithDeploymentAddress overrides the deployment address table.
func WithDeploymentAddress(addr uint32) ResolverOption {
	return func(r *Resolver) { r.deploymentAddress = addr }
}

func NewResolver(store Store, cacheDir string, opts ...ResolverOption) *Resolver {
	r := &Resolver{store: store, cacheDir: cacheDir}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ core.FirmwareResolver = (*Resolver)(nil)

// Resolve returns the package for req, downloading missing files into the
// cache. Concurrent callers for the same package share one download, which
// outlives the cancellation of any single caller.
func (r *Resolver) Resolve(ctx context.Context, req core.FirmwareRequest) (*core.FirmwarePackage, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.Wrap(core.PackageDownloadFailed, op, err)
	}
	target := core.ResolveTarget(req.Target)
	size := req.PartitionTableSize
	if size == 0 {
		size = DefaultPartitionTableSize
	}
	address := r.deploymentAddress
	if address == 0 {
		a, ok := DeploymentAddresses[size]
		if !ok {
			return nil, core.Errorf(core.PackageDownloadFailed, op, "unsupported partition table size %dMB", size)
		}
		address = a
	}

	base := target
	if req.Preview {
		base = previewPrefix + target
	}

	version := req.Version
	if version == "" {
		v, err := r.Latest(ctx, base, req.Preview)
		if err != nil {
			metrics.PackageResolveTotal.WithLabelValues("failed").Inc()
			return nil, core.Wrap(core.PackageDownloadFailed, op, err)
		}
		version = v
	}

	key := path.Join(base, version)
	ch := r.group.DoChan(key+"#"+strconv.Itoa(size), func() (any, error) {
		return r.fetch(context.WithoutCancel(ctx), key, size)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, core.Wrap(core.PackageDownloadFailed, op, ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		metrics.PackageResolveTotal.WithLabelValues("failed").Inc()
		return nil, core.Wrap(core.PackageDownloadFailed, op, res.Err)
	}

	files := res.Val.([]string)
	return &core.FirmwarePackage{
		Target:  target,
		Version: version,
		Plan: core.NewPartitionPlan(
			core.Partition{Address: plan.BootloaderAddress, Path: files[0]},
			core.Partition{Address: plan.PartitionTableAddress, Path: files[1]},
			core.Partition{Address: plan.RuntimeAddress, Path: files[2]},
		),
		DeploymentAddress: address,
		BootloaderPath:    files[0],
	}, nil
}

// Latest returns the highest semantic version stored below base. Pre-release
// versions count only on the preview channel.
func (r *Resolver) Latest(ctx context.Context, base string, preview bool) (string, error) {
	keys, err := r.store.List(ctx, base+"/")
	if err != nil {
		return "", err
	}

	var (
		best    string
		bestVer semver.Version
	)
	seen := map[string]bool{}
	for _, k := range keys {
		rest := strings.TrimPrefix(k, base+"/")
		name, _, ok := strings.Cut(rest, "/")
		if !ok || seen[name] {
			continue
		}
		seen[name] = true

		v, err := semver.ParseTolerant(name)
		if err != nil {
			continue
		}
		if len(v.Pre) > 0 && !preview {
			continue
		}
		if best == "" || v.GT(bestVer) {
			best, bestVer = name, v
		}
	}
	if best == "" {
		return "", fmt.Errorf("%w for %s", ErrNoVersion, base)
	}
	return best, nil
}

// fetch makes the bootloader, partition table and runtime of key available
// in the cache and returns their local paths in that order.
func (r *Resolver) fetch(ctx context.Context, key string, size int) ([]string, error) {
	dir := filepath.Join(r.cacheDir, filepath.FromSlash(key))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	names := []string{BootloaderFile, PartitionTableFile(size), RuntimeFile}
	paths := make([]string, len(names))
	for i, name := range names {
		local := filepath.Join(dir, name)
		paths[i] = local

		if info, err := os.Stat(local); err == nil && info.Size() > 0 {
			metrics.PackageResolveTotal.WithLabelValues("cached").Inc()
			continue
		}
		if err := r.download(ctx, path.Join(key, name), local); err != nil {
			return nil, err
		}
		metrics.PackageResolveTotal.WithLabelValues("downloaded").Inc()
		log.FromContext(ctx).Info("Downloaded firmware file", "key", path.Join(key, name))
	}
	return paths, nil
}

func (r *Resolver) download(ctx context.Context, key, local string) error {
	pf, err := renameio.NewPendingFile(local, renameio.WithPermissions(0o644))
	if err != nil {
		return err
	}
	defer func() { _ = pf.Cleanup() }()

	if err := r.store.Fetch(ctx, key, pf); err != nil {
		return fmt.Errorf("fetch %s: %w", key, err)
	}
	return pf.CloseAtomicallyReplace()
}
