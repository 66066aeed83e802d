package core

import (
	"errors"
	"fmt"
)

// Outcome is the closed set of workflow results. OK is the only success member.
type Outcome int

const (
	OK Outcome = iota
	MissingBackupPath
	DirectoryCreateFailed
	FileDeleteFailed
	RuntimeFileNotFound
	RuntimeFileWrongExtension
	ApplicationFileNotFound
	InvalidDeploymentAddress
	PackageDownloadFailed
	EraseFailed
	WriteFailed
	ReadFailed
	DeviceUnavailable
)

var outcomeNames = map[Outcome]string{
	OK:                        "ok",
	MissingBackupPath:         "missing-backup-path",
	DirectoryCreateFailed:     "directory-create-failed",
	FileDeleteFailed:          "file-delete-failed",
	RuntimeFileNotFound:       "runtime-file-not-found",
	RuntimeFileWrongExtension: "runtime-file-wrong-extension",
	ApplicationFileNotFound:   "application-file-not-found",
	InvalidDeploymentAddress:  "invalid-deployment-address",
	PackageDownloadFailed:     "package-download-failed",
	EraseFailed:               "erase-failed",
	WriteFailed:               "write-failed",
	ReadFailed:                "read-failed",
	DeviceUnavailable:         "device-unavailable",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// ExitCode is the process exit status the CLI reports for o.
func (o Outcome) ExitCode() int {
	if _, ok := outcomeNames[o]; !ok {
		return 1
	}
	return int(o)
}

// Error carries a non-OK Outcome together with the step that produced it
// and the underlying cause, if any.
type Error struct {
	Outcome Outcome
	Op      string
	Err     error
}

// Errorf builds an *Error whose cause is formatted from format and args.
func Errorf(outcome Outcome, op, format string, args ...any) *Error {
	return &Error{Outcome: outcome, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap builds an *Error around err. A nil err still yields an error.
func Wrap(outcome Outcome, op string, err error) *Error {
	return &Error{Outcome: outcome, Op: op, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Outcome, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Outcome, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Outcome)
	default:
		return e.Outcome.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Outcome, so errors.Is(err, &Error{Outcome: X}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Outcome == e.Outcome
}

// OutcomeOf maps err onto the taxonomy: nil is OK, an *Error anywhere in the
// chain yields its Outcome, anything else falls back to fallback.
func OutcomeOf(err error, fallback ...Outcome) Outcome {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Outcome
	}
	if len(fallback) > 0 {
		return fallback[0]
	}
	return DeviceUnavailable
}
