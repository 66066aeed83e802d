package orchestrator

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"

	"cloupeer.io/nanoflash/internal/flasher/core"
	fsmutil "cloupeer.io/nanoflash/internal/pkg/util/fsm"
)

// Update workflow states.
const (
	StateIdle       = "Idle"
	StateValidating = "Validating"
	StatePlanBuilt  = "PlanBuilt"
	StateErasing    = "Erasing"
	StateWriting    = "Writing"
	StateDone       = "Done"
	StateFailed     = "Failed"
)

const (
	eventValidate = "validate"
	eventPlan     = "plan"
	eventErase    = "erase"
	eventWrite    = "write"
	eventFinish   = "finish"
	eventFail     = "fail"
)

var phaseOf = map[string]core.Phase{
	StateValidating: core.PhaseValidate,
	StatePlanBuilt:  core.PhasePlan,
	StateErasing:    core.PhaseErase,
	StateWriting:    core.PhaseWrite,
	StateDone:       core.PhaseDone,
	StateFailed:     core.PhaseDone,
}

// newWorkflow builds the update state machine. Every entered state is
// reported through emit at debug level. The fail event carries the cause as
// its first argument.
func newWorkflow(emit emitFunc) *fsm.FSM {
	return fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventValidate, Src: []string{StateIdle}, Dst: StateValidating},
			{Name: eventPlan, Src: []string{StateValidating}, Dst: StatePlanBuilt},
			{Name: eventErase, Src: []string{StatePlanBuilt}, Dst: StateErasing},
			{Name: eventWrite, Src: []string{StateErasing}, Dst: StateWriting},
			{Name: eventFinish, Src: []string{StateWriting}, Dst: StateDone},
			{
				Name: eventFail,
				Src:  []string{StateValidating, StatePlanBuilt, StateErasing, StateWriting},
				Dst:  StateFailed,
			},
		},
		fsm.Callbacks{
			"enter_state": fsmutil.WrapEvent(func(_ context.Context, e *fsm.Event) error {
				emit(phaseOf[e.Dst], core.LevelDebug, fmt.Sprintf("state %s -> %s", e.Src, e.Dst))
				return nil
			}),
			"enter_" + StateFailed: fsmutil.WrapEvent(func(_ context.Context, e *fsm.Event) error {
				cause, err := fsmutil.Arg[error](e, 0)
				if err != nil {
					return err
				}
				emit(core.PhaseDone, core.LevelDebug, fmt.Sprintf("workflow failed in %s: %v", e.Src, cause))
				return nil
			}),
		},
	)
}

// transition fires event on m. Transitions are fixed by the workflow code, so
// a rejected one is a programming error and is reported as such.
func transition(ctx context.Context, m *fsm.FSM, event string, args ...any) error {
	if err := m.Event(ctx, event, args...); err != nil {
		return fmt.Errorf("workflow transition %q from %s: %w", event, m.Current(), err)
	}
	return nil
}
