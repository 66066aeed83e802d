package orchestrator

import (
	"context"
	"fmt"
	"os"

	"cloupeer.io/nanoflash/internal/flasher/compat"
	"cloupeer.io/nanoflash/internal/flasher/core"
	"cloupeer.io/nanoflash/internal/flasher/erase"
	"cloupeer.io/nanoflash/internal/flasher/plan"
	"cloupeer.io/nanoflash/internal/pkg/metrics"
)

// UpdateRequest describes an update (UpdateFirmware set) or a deploy-only run.
type UpdateRequest struct {
	// Target firmware name; empty selects core.DefaultTarget.
	Target string
	// Version of the package; empty selects the latest.
	Version string
	// Preview selects the preview channel.
	Preview bool
	// PartitionTableSize in MB; zero lets the resolver choose from the flash size.
	PartitionTableSize int

	UpdateFirmware    bool
	RuntimePath       string
	ApplicationPath   string
	DeploymentAddress string
}

func (r UpdateRequest) needsPackage() bool {
	// deploy-only still needs the package bootloader to size the erase
	return r.UpdateFirmware || r.ApplicationPath != ""
}

// Update validates the device, resolves the package, builds the plan, erases
// and writes. The first non-OK step ends the run in StateFailed. Cancelling
// ctx is honoured up to the erase step; once erasing starts the run goes on
// through the write.
func (o *Orchestrator) Update(ctx context.Context, dev *core.Device, req UpdateRequest) (err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := o.newSession(dev, o.updateLabel)
	emit := o.emitter(s)
	m := newWorkflow(emit)
	// looplab/fsm refuses transitions on a cancelled context, and the device
	// must not be left erased but unwritten
	wf := context.WithoutCancel(ctx)
	defer func() {
		if err != nil && m.Can(eventFail) {
			_ = m.Event(wf, eventFail, err)
		}
		o.state = m.Current()
		o.finish(ctx, s, err)
	}()

	if err := transition(wf, m, eventValidate); err != nil {
		return err
	}
	if dev == nil {
		return core.Errorf(core.DeviceUnavailable, "validate", "no device descriptor")
	}

	target := core.ResolveTarget(req.Target)
	for _, w := range compat.Validate(dev, target) {
		emit(core.PhaseValidate, core.LevelWarn, fmt.Sprintf("%s: %s", w.Kind, w))
	}

	pr := plan.Request{
		UpdateFirmware:    req.UpdateFirmware,
		RuntimePath:       req.RuntimePath,
		ApplicationPath:   req.ApplicationPath,
		DeploymentAddress: req.DeploymentAddress,
	}
	if err := pr.Validate(); err != nil {
		return err
	}

	if req.needsPackage() {
		if pr.Package, err = o.resolve(ctx, emit, dev, target, req); err != nil {
			return err
		}
	}
	pkg := pr.Package

	p, err := plan.Build(pr)
	if err != nil {
		return err
	}
	if err := transition(wf, m, eventPlan); err != nil {
		return err
	}
	for _, part := range p.Partitions() {
		emit(core.PhasePlan, core.LevelInfo, fmt.Sprintf("0x%X <- %s", part.Address, part.Path))
	}

	er, err := o.eraseRequest(req, pkg)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return core.Wrap(core.EraseFailed, "erase", fmt.Errorf("cancelled before erase: %w", err))
	}

	if err := transition(wf, m, eventErase); err != nil {
		return err
	}
	if err := o.erase(wf, emit, er); err != nil {
		return err
	}

	if err := transition(wf, m, eventWrite); err != nil {
		return err
	}
	if err := o.write(wf, emit, p); err != nil {
		return err
	}

	return transition(wf, m, eventFinish)
}

func (o *Orchestrator) resolve(ctx context.Context, emit emitFunc, dev *core.Device, target string, req UpdateRequest) (*core.FirmwarePackage, error) {
	if o.resolver == nil {
		return nil, core.Errorf(core.PackageDownloadFailed, "resolve", "no firmware resolver configured")
	}

	emit(core.PhaseResolve, core.LevelInfo, fmt.Sprintf("resolving firmware %s %s", target, versionOrLatest(req.Version)))
	pkg, err := o.resolver.Resolve(ctx, core.FirmwareRequest{
		Target:             target,
		Version:            req.Version,
		Preview:            req.Preview,
		PartitionTableSize: partitionTableSize(req.PartitionTableSize, dev),
	})
	if err != nil {
		return nil, classify(err, core.PackageDownloadFailed, "resolve")
	}
	emit(core.PhaseResolve, core.LevelInfo, fmt.Sprintf("using firmware %s %s", pkg.Target, pkg.Version))
	return pkg, nil
}

func (o *Orchestrator) eraseRequest(req UpdateRequest, pkg *core.FirmwarePackage) (erase.Request, error) {
	hasApp := req.ApplicationPath != ""
	var (
		bootloader string
		address    uint32
	)
	if pkg != nil {
		bootloader, address = pkg.BootloaderPath, pkg.DeploymentAddress
	}
	if !req.UpdateFirmware && hasApp {
		// plan.Build already rejected an unparsable address
		address, _ = plan.ParseAddress(req.DeploymentAddress)
	}
	return erase.Compute(req.UpdateFirmware, hasApp, bootloader, address)
}

func (o *Orchestrator) erase(ctx context.Context, emit emitFunc, r erase.Request) error {
	switch {
	case r.Skip:
		emit(core.PhaseErase, core.LevelInfo, "nothing to erase")
		return nil
	case r.Full:
		emit(core.PhaseErase, core.LevelInfo, erase.Describe(r))
		if err := o.transport.EraseAll(ctx); err != nil {
			return classify(err, core.EraseFailed, "erase")
		}
	default:
		emit(core.PhaseErase, core.LevelInfo, erase.Describe(r))
		if err := o.transport.EraseRange(ctx, r.Range); err != nil {
			return classify(err, core.EraseFailed, "erase")
		}
	}
	return nil
}

func (o *Orchestrator) write(ctx context.Context, emit emitFunc, p *core.PartitionPlan) error {
	if p.Len() == 0 {
		return core.Errorf(core.WriteFailed, "write", "partition plan is empty")
	}

	var total int64
	for _, part := range p.Partitions() {
		if info, err := os.Stat(part.Path); err == nil {
			total += info.Size()
		}
	}

	emit(core.PhaseWrite, core.LevelInfo, fmt.Sprintf("writing %d partition(s), %d bytes", p.Len(), total))
	if err := o.transport.WritePlan(ctx, p); err != nil {
		return classify(err, core.WriteFailed, "write")
	}
	metrics.WrittenBytes.WithLabelValues(o.updateLabel).Add(float64(total))
	return nil
}

// partitionTableSize picks the table matching the flash when none was asked for.
func partitionTableSize(requested int, dev *core.Device) int {
	if requested != 0 || dev == nil {
		return requested
	}
	const mb = 1 << 20
	switch mbytes := dev.FlashSize / mb; {
	case mbytes >= 16:
		return 16
	case mbytes >= 8:
		return 8
	case mbytes >= 4:
		return 4
	case mbytes >= 2:
		return 2
	default:
		return 0
	}
}

func versionOrLatest(v string) string {
	if v == "" {
		return "(latest)"
	}
	return v
}
