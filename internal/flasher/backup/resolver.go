// Package backup resolves where a full flash dump is written.
package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"cloupeer.io/nanoflash/internal/flasher/core"
)

const op = "resolve backup path"

// FileName synthesizes the default dump name <chip>_0x<mac>_<date>.bin, the
// date being now in UTC.
func FileName(dev *core.Device, now time.Time) string {
	return fmt.Sprintf("%s_0x%s_%s.bin", dev.ChipType, dev.MACHex(), now.UTC().Format(time.DateOnly))
}

// Resolve returns the path a flash dump should be written to.
//
// A filename without a directory is rejected. With neither, the working
// directory is used. A missing directory is created. When no filename is
// given one is synthesized with FileName. Finally, a file already present at
// the bare filename, relative to the working directory, is removed.
func Resolve(dev *core.Device, filename, dir string, now time.Time) (string, error) {
	if dir == "" {
		if filename != "" {
			return "", core.Errorf(core.MissingBackupPath, op, "backup file %q given without a backup directory", filename)
		}
		wd, err := os.Getwd()
		if err != nil {
			return "", core.Wrap(core.MissingBackupPath, op, err)
		}
		dir = wd
	}

	if _, err := os.Stat(dir); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return "", core.Wrap(core.DirectoryCreateFailed, op, err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", core.Wrap(core.DirectoryCreateFailed, op, err)
		}
	}

	if filename == "" {
		filename = FileName(dev, now)
	}

	// The stale-file check looks at the bare filename, not the joined path.
	if _, err := os.Stat(filename); err == nil {
		if err := os.Remove(filename); err != nil {
			return "", core.Wrap(core.FileDeleteFailed, op, err)
		}
	}

	return filepath.Join(dir, filename), nil
}
