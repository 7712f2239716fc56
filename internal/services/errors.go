// Package services holds the portal's business operations. Each service
// coordinates repositories, object storage and the audit logger, and
// enforces role and deal-scope authorization on every call so handlers never
// rely on view gating alone.
package services

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by every service. Handlers map them to 404, 403
// and 400; anything else is a 500.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
)

// InputError carries a reason that is safe to show to the user. It matches
// ErrInvalidInput under errors.Is.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string { return e.Reason }

// Is makes errors.Is(err, ErrInvalidInput) true.
func (e *InputError) Is(target error) bool { return target == ErrInvalidInput }

func invalidf(format string, args ...any) error {
	return &InputError{Reason: fmt.Sprintf(format, args...)}
}
