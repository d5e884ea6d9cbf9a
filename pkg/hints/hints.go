// Package hints labels "soft failures": errors that only signal a skipped step.
//
// A repository that is already backed up, a retention window of zero or an
// empty hook list are not failures of the backup run. Producers mark such
// errors as hints and the engine checks hints.IsHint instead of importing every
// producer's sentinel.
package hints

import (
	"errors"
	"fmt"
)

type hintErr struct {
	err error
}

func (h *hintErr) Error() string {
	if h == nil || h.err == nil {
		return "unknown hint"
	}
	return h.err.Error()
}
func (h *hintErr) IsHint() bool  { return true }
func (h *hintErr) Unwrap() error { return h.err }

// New creates a hint from a string.
func New(msg string) error {
	return &hintErr{err: errors.New(msg)}
}

// Wrap promotes an existing error to a hint.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return &hintErr{err: err}
}

// Wrapf wraps err with a formatted prefix and promotes the result to a hint.
// The sentinel stays reachable through errors.Is.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &hintErr{err: fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)}
}

// IsHint checks if any error in the chain behaves like a hint.
func IsHint(err error) bool {
	var h interface{ IsHint() bool }
	return errors.As(err, &h) && h.IsHint()
}

// Is checks if the error is a hint AND matches the target error.
func Is(err, target error) bool {
	return IsHint(err) && errors.Is(err, target)
}
