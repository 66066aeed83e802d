package orchestrator

import (
	"context"
	"fmt"

	"cloupeer.io/nanoflash/internal/flasher/backup"
	"cloupeer.io/nanoflash/internal/flasher/core"
)

// BackupRequest names where a flash image should be saved. Either field may
// be empty; see backup.Resolve for how they combine.
type BackupRequest struct {
	FileName  string
	Directory string
}

// Backup reads the whole flash of dev into a file and returns its path.
func (o *Orchestrator) Backup(ctx context.Context, dev *core.Device, req BackupRequest) (path string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := o.newSession(dev, "backup")
	emit := o.emitter(s)
	defer func() { o.finish(ctx, s, err) }()

	if dev == nil {
		return "", core.Errorf(core.DeviceUnavailable, "backup", "no device descriptor")
	}

	path, err = backup.Resolve(dev, req.FileName, req.Directory, o.now())
	if err != nil {
		return "", err
	}

	emit(core.PhaseBackup, core.LevelInfo, fmt.Sprintf("reading %d bytes of flash into %s", dev.FlashSize, path))
	if err := o.transport.ReadFlash(ctx, path, dev.FlashSize); err != nil {
		return "", classify(err, core.ReadFailed, "read flash")
	}
	emit(core.PhaseBackup, core.LevelInfo, "flash image saved to "+path)

	return path, nil
}
