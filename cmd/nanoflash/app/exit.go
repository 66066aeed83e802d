package app

import (
	"errors"

	"cloupeer.io/nanoflash/internal/flasher/core"
)

// ExitCode maps err to the process exit status: 0 on success, the outcome
// code for workflow errors and 1 for anything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *core.Error
	if errors.As(err, &e) {
		return e.Outcome.ExitCode()
	}
	return 1
}
