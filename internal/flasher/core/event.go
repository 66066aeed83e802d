package core

import (
	"time"
)

// Phase names the workflow step an Event belongs to.
type Phase string

const (
	PhaseValidate Phase = "validate"
	PhaseResolve  Phase = "resolve"
	PhasePlan     Phase = "plan"
	PhaseErase    Phase = "erase"
	PhaseWrite    Phase = "write"
	PhaseBackup   Phase = "backup"
	PhaseDone     Phase = "done"
)

// Level is the severity of an Event.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event is a structured progress notification.
type Event struct {
	Time    time.Time `json:"time"`
	Session string    `json:"session,omitempty"`
	Device  string    `json:"device,omitempty"`
	Phase   Phase     `json:"phase"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	// Outcome is set on the terminal event of a workflow.
	Outcome string `json:"outcome,omitempty"`
}

// EventSink receives progress events. Emit must not block for long.
type EventSink interface {
	Emit(e Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

func (f EventSinkFunc) Emit(e Event) { f(e) }

// MultiSink fans every event out to each non-nil sink in order.
func MultiSink(sinks ...EventSink) EventSink {
	out := make([]EventSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return EventSinkFunc(func(e Event) {
		for _, s := range out {
			s.Emit(e)
		}
	})
}

// Discard drops every event.
var Discard EventSink = EventSinkFunc(func(Event) {})
