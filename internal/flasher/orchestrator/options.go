package orchestrator

import (
	"time"

	"github.com/google/uuid"

	"cloupeer.io/nanoflash/internal/flasher/core"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEventSink sets the sink that receives progress events.
func WithEventSink(sink core.EventSink) Option {
	return func(o *Orchestrator) {
		if sink != nil {
			o.sink = sink
		}
	}
}

// WithClock overrides time.Now. Backup file names and event times use it.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithSessionIDs overrides the session id generator.
func WithSessionIDs(next func() string) Option {
	return func(o *Orchestrator) {
		if next != nil {
			o.nextSession = next
		}
	}
}

// WithWorkflowLabel sets the metrics label used for update runs, so the CLI
// can tell "update" and "deploy" apart.
func WithWorkflowLabel(label string) Option {
	return func(o *Orchestrator) {
		if label != "" {
			o.updateLabel = label
		}
	}
}

func defaultOptions(o *Orchestrator) {
	o.sink = core.Discard
	o.now = time.Now
	o.nextSession = uuid.NewString
	o.updateLabel = "update"
}
