package txn

import (
	"context"
	"strconv"
	"strings"

	"github.com/nikmy/graphtx/pkg/errors"
)

var (
	ErrIncompatibleTransactionMode = errors.Error("incompatible transaction mode")
	ErrCommitFailed                = errors.Error("commit failed")
	ErrUnexpectedRollback          = errors.Error("transaction rolled back because it was marked rollback-only")
	ErrRetriesExhausted            = errors.Error("retries exhausted")
	ErrBackendUnavailable          = errors.Error("backend unavailable")
	ErrTransactionNotActive        = errors.Error("transaction is not active")
)

type Phase string

const (
	PhaseBegin    Phase = "begin"
	PhaseRun      Phase = "run"
	PhaseCommit   Phase = "commit"
	PhaseRollback Phase = "rollback"
	PhaseRetry    Phase = "retry"
)

// Error attaches the database and the phase to a failure. Kind is one of the
// Err* values above, or nil when a backend error is passed through as is.
type Error struct {
	Kind     error
	Database string
	Phase    Phase
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("txn ")
	b.WriteString(string(e.Phase))
	if e.Database != "" {
		b.WriteString(" on ")
		b.WriteString(strconv.Quote(e.Database))
	}
	if e.Kind != nil {
		b.WriteString(": ")
		b.WriteString(e.Kind.Error())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func newError(kind error, phase Phase, database string, err error) *Error {
	return &Error{Kind: kind, Database: database, Phase: phase, Err: err}
}

type transientError struct {
	err error
}

// Transient marks err as safe to retry from the top of the unit of work:
// leader switches, deadlocks, lost connections.
func Transient(err error) error {
	if err == nil || IsTransient(err) {
		return err
	}
	return &transientError{err: err}
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

type unavailableError struct {
	err error
}

// Unavailable marks err as ErrBackendUnavailable while keeping the cause.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrBackendUnavailable) {
		return err
	}
	return &unavailableError{err: err}
}

func (e *unavailableError) Error() string   { return ErrBackendUnavailable.Error() + ": " + e.err.Error() }
func (e *unavailableError) Unwrap() []error { return []error{ErrBackendUnavailable, e.err} }

var neverRetried = []error{
	context.Canceled,
	context.DeadlineExceeded,
	ErrIncompatibleTransactionMode,
	ErrUnexpectedRollback,
	ErrTransactionNotActive,
	ErrRetriesExhausted,
}

type Class int

const (
	Permanent Class = iota
	Retryable
)

func (c Class) String() string {
	if c == Retryable {
		return "transient"
	}
	return "permanent"
}

// Classify decides whether the unit of work that failed with err may be run again.
// Misuse of the transaction API and caller cancellation are never retried.
func Classify(err error) Class {
	switch {
	case err == nil, errors.IsAny(err, neverRetried...):
		return Permanent
	case IsTransient(err):
		return Retryable
	default:
		return Permanent
	}
}
