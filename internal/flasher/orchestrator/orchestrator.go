// Package orchestrator sequences validation, firmware resolution, plan
// building, erase and write against a device, and reports progress.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"cloupeer.io/nanoflash/internal/flasher/core"
	"cloupeer.io/nanoflash/internal/pkg/metrics"
	"cloupeer.io/nanoflash/pkg/log"
)

// Orchestrator runs backup and update workflows. Workflows on one
// Orchestrator are serialized: a device accepts a single flashing session.
type Orchestrator struct {
	transport core.Transport
	resolver  core.FirmwareResolver

	sink        core.EventSink
	now         func() time.Time
	nextSession func() string
	updateLabel string

	mu    sync.Mutex
	state string
}

// New returns an Orchestrator driving transport. resolver may be nil when
// only backups are run.
func New(transport core.Transport, resolver core.FirmwareResolver, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		transport: transport,
		resolver:  resolver,
		state:     StateIdle,
	}
	defaultOptions(o)
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State reports the state the last update workflow ended in.
func (o *Orchestrator) State() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

type emitFunc func(phase core.Phase, level core.Level, msg string)

// session carries the per-run identity stamped on every event.
type session struct {
	id       string
	device   string
	workflow string
	started  time.Time
}

func (o *Orchestrator) newSession(dev *core.Device, workflow string) *session {
	s := &session{id: o.nextSession(), workflow: workflow, started: o.now()}
	if dev != nil {
		s.device = dev.MACHex()
	}
	return s
}

func (o *Orchestrator) emitter(s *session) emitFunc {
	return func(phase core.Phase, level core.Level, msg string) {
		o.sink.Emit(core.Event{
			Time:    o.now(),
			Session: s.id,
			Device:  s.device,
			Phase:   phase,
			Level:   level,
			Message: msg,
		})
	}
}

// finish emits the terminal event and records metrics for s.
func (o *Orchestrator) finish(ctx context.Context, s *session, err error) {
	outcome := core.OutcomeOf(err)
	level, msg := core.LevelInfo, s.workflow+" completed"
	if err != nil {
		level, msg = core.LevelError, err.Error()
		log.FromContext(ctx).Debug("Workflow failed", "workflow", s.workflow, "session", s.id, "error", err)
	}
	o.sink.Emit(core.Event{
		Time:    o.now(),
		Session: s.id,
		Device:  s.device,
		Phase:   core.PhaseDone,
		Level:   level,
		Message: msg,
		Outcome: outcome.String(),
	})

	metrics.WorkflowTotal.WithLabelValues(s.workflow, outcome.String()).Inc()
	metrics.WorkflowDuration.WithLabelValues(s.workflow).Observe(o.now().Sub(s.started).Seconds())
}

// classify keeps an error that already carries an Outcome and wraps anything
// else with fallback.
func classify(err error, fallback core.Outcome, op string) error {
	var e *core.Error
	if errors.As(err, &e) {
		return err
	}
	return core.Wrap(fallback, op, err)
}
