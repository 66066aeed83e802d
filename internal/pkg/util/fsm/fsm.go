package fsm

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
)

// WrapEvent adapts an error-returning callback to fsm.Callback; a non-nil
// error is stored on the event and returned from FSM.Event.
func WrapEvent(fn func(ctx context.Context, event *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, event *fsm.Event) {
		if err := fn(ctx, event); err != nil {
			event.Err = err
		}
	}
}

// Arg returns the i-th event argument as T.
func Arg[T any](event *fsm.Event, i int) (T, error) {
	var zero T
	if i >= len(event.Args) {
		return zero, fmt.Errorf("event %s: missing argument %d", event.Event, i)
	}
	v, ok := event.Args[i].(T)
	if !ok {
		return zero, fmt.Errorf("event %s: argument %d is %T, want %T", event.Event, i, event.Args[i], zero)
	}
	return v, nil
}
