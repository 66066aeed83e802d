// Package firmware locates firmware packages in a store, caches their files
// locally and turns them into core.FirmwarePackage values.
package firmware

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// Store is a read-only repository of package files addressed by
// slash-separated keys.
type Store interface {
	// List returns every key below prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Fetch copies the object stored at key into w.
	Fetch(ctx context.Context, key string, w io.Writer) error
}

// ErrNotFound is returned by a Store for a key it does not hold.
var ErrNotFound = errors.New("object not found")

// DirStore serves packages from a local directory tree.
type DirStore struct {
	root string
}

func NewDirStore(root string) *DirStore {
	return &DirStore{root: root}
}

func (s *DirStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	base := filepath.Join(s.root, filepath.FromSlash(prefix))
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	return keys, err
}

func (s *DirStore) Fetch(ctx context.Context, key string, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// rooting the key before cleaning keeps ".." inside s.root
	clean := path.Clean("/" + key)
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(clean)))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
