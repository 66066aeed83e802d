package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cloupeer.io/nanoflash/cmd/nanoflash/app/options"
	"cloupeer.io/nanoflash/internal/pkg/metrics"
	"cloupeer.io/nanoflash/pkg/log"
)

const (
	commandName = "nanoflash"
	commandDesc = `nanoflash backs up, updates and deploys firmware on ESP32 boards.

It validates the board against the firmware target, resolves the firmware
package, builds the flash partition plan, erases and writes it, and reports
every step as a structured progress event.`
)

// NewNanoflashCommand builds the root command and its subcommands.
func NewNanoflashCommand(ctx context.Context) *cobra.Command {
	opts := options.NewOptions()
	var configFile string

	cmd := &cobra.Command{
		Use:           commandName,
		Short:         "Flash nanoFramework firmware onto ESP32 devices",
		Long:          commandDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(viper.New(), configFile, cmd.Flags(), opts); err != nil {
				return err
			}
			if err := opts.Complete(); err != nil {
				return err
			}
			if err := opts.Validate(); err != nil {
				return err
			}
			log.Init(opts.Log)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.MetricsFile != "" {
				if err := metrics.WriteTextfile(opts.MetricsFile); err != nil {
					log.Error(err, "Failed to write metrics file", "path", opts.MetricsFile)
				}
			}
			_ = log.Sync()
		},
	}
	cmd.SetContext(ctx)

	fs := cmd.PersistentFlags()
	fs.StringVarP(&configFile, "config", "c", "", "Read configuration from this file (YAML, JSON or TOML).")
	namedfs := opts.Flags()
	for _, f := range namedfs.FlagSets {
		fs.AddFlagSet(f)
	}

	cmd.AddCommand(
		newBackupCommand(opts),
		newUpdateCommand(opts),
		newDeployCommand(opts),
		newInfoCommand(opts),
	)
	return cmd
}

func newBackupCommand(opts *options.Options) *cobra.Command {
	var req backupFlags
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Save the whole device flash to a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackup(cmd.Context(), cmd.OutOrStdout(), opts, req)
		},
	}
	cmd.Flags().StringVar(&req.File, "file", "", "Backup file name; requires --dir.")
	cmd.Flags().StringVar(&req.Dir, "dir", "", "Backup directory, created when missing (working directory when empty).")
	return cmd
}

func newUpdateCommand(opts *options.Options) *cobra.Command {
	var req deployFlags
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Erase the device and write a complete firmware package",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd.Context(), opts, req, true)
		},
	}
	req.addFlags(cmd)
	return cmd
}

func newDeployCommand(opts *options.Options) *cobra.Command {
	var (
		req   deployFlags
		watch bool
	)
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Write an application and/or runtime image without a full firmware update",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.Application == "" && req.Runtime == "" {
				return fmt.Errorf("deploy needs --app or --clr")
			}
			if watch {
				if req.Application == "" {
					return fmt.Errorf("--watch needs --app")
				}
				return runWatch(cmd.Context(), opts, req)
			}
			return runUpdate(cmd.Context(), opts, req, false)
		},
	}
	req.addFlags(cmd)
	cmd.Flags().BoolVar(&watch, "watch", false, "Redeploy whenever the application file changes.")
	return cmd
}

func newInfoCommand(opts *options.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the device descriptor and its compatibility with the firmware target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
}
