package errors

import (
	"errors"
	"fmt"
)

var (
	Is = errors.Is
	As = errors.As
)

// WrapFail and WrapFailf render as "can't <what failed>: <cause>".
const cantPrefix = "can't "

func Error(msg string) error {
	return errors.New(msg)
}

func Errorf(msgFormat string, args ...any) error {
	return fmt.Errorf(msgFormat, args...)
}

// IsAny reports whether err matches at least one of targets.
func IsAny(err error, targets ...error) bool {
	if err == nil {
		return false
	}
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Collapse joins errs, skipping nils. Returns nil when nothing is left.
func Collapse(errs ...error) error {
	return errors.Join(errs...)
}

func Wrap(err error, wrapper string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", wrapper, err)
}

func Wrapf(err error, wrapperFormat string, args ...any) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(wrapperFormat, args...))
}

func WrapFail(err error, whatFailed string) error {
	return Wrap(err, cantPrefix+whatFailed)
}

func WrapFailf(err error, whatFailedFormat string, args ...any) error {
	if err == nil {
		return nil
	}
	return Wrap(err, cantPrefix+fmt.Sprintf(whatFailedFormat, args...))
}
