package app

import (
	"context"
	"fmt"
	"time"

	"cloupeer.io/nanoflash/cmd/nanoflash/app/options"
	"cloupeer.io/nanoflash/internal/flasher/core"
	"cloupeer.io/nanoflash/internal/flasher/firmware"
	"cloupeer.io/nanoflash/internal/flasher/hal"
	"cloupeer.io/nanoflash/internal/flasher/notifier"
	"cloupeer.io/nanoflash/internal/flasher/orchestrator"
	"cloupeer.io/nanoflash/pkg/log"
)

// session is one connected device with its orchestrator and sinks.
type session struct {
	info   *core.Device
	orch   *orchestrator.Orchestrator
	closer func()
}

func (s *session) Close() {
	if s.closer != nil {
		s.closer()
	}
}

func openDevice(opts *options.Options) (hal.Device, error) {
	if opts.Device.Simulate {
		sim, err := hal.NewSimulator(opts.Device.SimulatorDir, nil)
		if err != nil {
			return nil, core.Wrap(core.DeviceUnavailable, "open simulator", err)
		}
		log.Info("Using simulated device", "image", sim.ImagePath())
		return sim, nil
	}
	return hal.NewEsptool(opts.Device.EsptoolConfig()), nil
}

// newResolver opens the configured firmware store. A bucket store is checked
// up front so an absent bucket fails before the device is touched.
func newResolver(ctx context.Context, opts *options.Options) (core.FirmwareResolver, error) {
	var store firmware.Store
	switch opts.Firmware.Source {
	case options.SourceDir:
		store = firmware.NewDirStore(opts.Firmware.Dir)
	default:
		s3, err := firmware.NewMinIOStore(opts.S3)
		if err != nil {
			return nil, err
		}
		if err := s3.CheckBucket(ctx); err != nil {
			return nil, err
		}
		store = s3
	}
	return firmware.NewResolver(store, opts.Firmware.CacheDir, opts.Firmware.ResolverOptions()...), nil
}

// newSession reads the device descriptor and wires the orchestrator with a
// log sink and, when configured, an MQTT sink. label names the workflow in
// metrics and logs.
func newSession(ctx context.Context, opts *options.Options, label string, withResolver bool) (*session, error) {
	device, err := openDevice(opts)
	if err != nil {
		return nil, err
	}

	info, err := device.DeviceInfo(ctx)
	if err != nil {
		return nil, err
	}
	logger := log.WithName(label).WithValues("device", info.MACHex())

	var resolver core.FirmwareResolver
	if withResolver {
		if resolver, err = newResolver(ctx, opts); err != nil {
			return nil, core.Wrap(core.PackageDownloadFailed, "firmware store", err)
		}
	}

	sinks := []core.EventSink{notifier.NewLogSink(logger)}
	closer := func() {}
	if opts.Mqtt.Enabled() {
		mq, err := notifier.DialMQTTSink(ctx, opts.Mqtt, info.MACHex())
		if err != nil {
			logger.Warn("Progress publishing disabled", "broker", opts.Mqtt.Broker, "error", err)
		} else {
			sinks = append(sinks, mq)
			closer = func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				mq.Close(ctx)
			}
		}
	}

	orch := orchestrator.New(device, resolver,
		orchestrator.WithEventSink(core.MultiSink(sinks...)),
		orchestrator.WithWorkflowLabel(label),
	)

	logger.Info("Device connected", "chip", info.ChipName, "flash", fmt.Sprintf("%dMB", info.FlashSize>>20))
	return &session{info: info, orch: orch, closer: closer}, nil
}
