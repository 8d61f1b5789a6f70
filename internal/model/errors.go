package model

import (
	"errors"
	"strconv"
)

// Kind is a closed taxonomy of error kinds the engine recognizes.
// Components classify errors into one of these so the CLI and notifier can
// render a stable string instead of matching on error messages.
type Kind string

const (
	KindConfigInvalid       Kind = "ConfigInvalid"
	KindAlreadyRunning      Kind = "AlreadyRunning"
	KindUnreachable         Kind = "Unreachable"
	KindHandlerFailed       Kind = "HandlerFailed"
	KindRetentionDegenerate Kind = "RetentionDegenerate"
	KindProcessError        Kind = "ProcessError"
	KindIllegalTransfer     Kind = "IllegalTransfer"
	KindBehindSchedule      Kind = "BehindSchedule"
	KindDuplicateID         Kind = "DuplicateId"
	KindUnknownID           Kind = "UnknownId"
	KindVersionClash        Kind = "VersionClash"
	KindUnknown             Kind = "Unknown"
)

// Sentinel errors for kinds that carry no payload beyond their message.
var (
	ErrConfigInvalid       = errors.New("config invalid")
	ErrAlreadyRunning      = errors.New("already running")
	ErrUnreachable         = errors.New("unreachable")
	ErrHandlerFailed       = errors.New("handler failed")
	ErrRetentionDegenerate = errors.New("retention degenerate: refusing to prune to an empty protected set")
	ErrIllegalTransfer     = errors.New("illegal transfer between incompatible endpoints")
	ErrBehindSchedule      = errors.New("scheduler is behind schedule")
	ErrDuplicateID         = errors.New("duplicate cleanup queue id")
	ErrUnknownID           = errors.New("unknown cleanup queue id")
	ErrVersionClash        = errors.New("version directory already exists")
)

// ProcessError wraps a non-zero subprocess exit (ProcessError(code,msg)).
type ProcessError struct {
	Argv   []string
	Code   int
	Stderr string
}

func (e *ProcessError) Error() string {
	return "process exited " + strconv.Itoa(e.Code) + ": " + e.Stderr
}

func (e *ProcessError) Is(target error) bool {
	return target == ErrProcessError
}

// ErrProcessError is the sentinel matched by ProcessError.Is, so callers can
// write errors.Is(err, model.ErrProcessError) without a type assertion.
var ErrProcessError = errors.New("process error")

// Classify maps an error to its taxonomy Kind by walking the sentinel chain
// with errors.Is/errors.As. Unrecognized errors classify as KindUnknown.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrConfigInvalid):
		return KindConfigInvalid
	case errors.Is(err, ErrAlreadyRunning):
		return KindAlreadyRunning
	case errors.Is(err, ErrUnreachable):
		return KindUnreachable
	case errors.Is(err, ErrHandlerFailed):
		return KindHandlerFailed
	case errors.Is(err, ErrRetentionDegenerate):
		return KindRetentionDegenerate
	case errors.Is(err, ErrProcessError):
		return KindProcessError
	case errors.Is(err, ErrIllegalTransfer):
		return KindIllegalTransfer
	case errors.Is(err, ErrBehindSchedule):
		return KindBehindSchedule
	case errors.Is(err, ErrDuplicateID):
		return KindDuplicateID
	case errors.Is(err, ErrUnknownID):
		return KindUnknownID
	case errors.Is(err, ErrVersionClash):
		return KindVersionClash
	default:
		return KindUnknown
	}
}
