package app

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"cloupeer.io/nanoflash/cmd/nanoflash/app/options"
	"cloupeer.io/nanoflash/internal/flasher/compat"
	"cloupeer.io/nanoflash/internal/flasher/core"
	"cloupeer.io/nanoflash/internal/flasher/orchestrator"
	"cloupeer.io/nanoflash/pkg/log"
)

type backupFlags struct {
	File string
	Dir  string
}

type deployFlags struct {
	Application string
	Runtime     string
	Address     string
}

func (f *deployFlags) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Application, "app", "", "Application image to place in the deployment partition.")
	cmd.Flags().StringVar(&f.Runtime, "clr", "", "Runtime (nanoCLR) image replacing the package runtime; must end in .bin.")
	cmd.Flags().StringVar(&f.Address, "address", "", "Deployment address for --app in deploy-only mode (0x-prefixed hex).")
}

func (f deployFlags) request(opts *options.Options, updateFirmware bool) orchestrator.UpdateRequest {
	return orchestrator.UpdateRequest{
		Target:             opts.Firmware.Target,
		Version:            opts.Firmware.Version,
		Preview:            opts.Firmware.Preview,
		PartitionTableSize: opts.Firmware.PartitionTableSize,
		UpdateFirmware:     updateFirmware,
		RuntimePath:        f.Runtime,
		ApplicationPath:    f.Application,
		DeploymentAddress:  f.Address,
	}
}

func workflowLabel(updateFirmware bool) string {
	if updateFirmware {
		return "update"
	}
	return "deploy"
}

func runBackup(ctx context.Context, out io.Writer, opts *options.Options, flags backupFlags) error {
	s, err := newSession(ctx, opts, "backup", false)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx = log.IntoContext(ctx, log.WithName("backup"))
	path, err := s.orch.Backup(ctx, s.info, orchestrator.BackupRequest{FileName: flags.File, Directory: flags.Dir})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, path)
	return err
}

func runUpdate(ctx context.Context, opts *options.Options, flags deployFlags, updateFirmware bool) error {
	label := workflowLabel(updateFirmware)
	req := flags.request(opts, updateFirmware)
	s, err := newSession(ctx, opts, label, req.UpdateFirmware || req.ApplicationPath != "")
	if err != nil {
		return err
	}
	defer s.Close()

	ctx = log.IntoContext(ctx, log.WithName(label))
	return s.orch.Update(ctx, s.info, req)
}

func runInfo(ctx context.Context, out io.Writer, opts *options.Options) error {
	device, err := openDevice(opts)
	if err != nil {
		return err
	}
	info, err := device.DeviceInfo(ctx)
	if err != nil {
		return err
	}

	target := core.ResolveTarget(opts.Firmware.Target)
	return renderDevice(out, info, target, compat.Validate(info, target))
}
