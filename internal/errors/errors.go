package errors

import (
	"errors"
	"fmt"
)

// Error taxonomy for a renewal run
var (
	// Precondition errors, raised before the portal is touched
	ErrLockHeld              = errors.New("another instance holds the lock")
	ErrDownstreamUnavailable = errors.New("download client unavailable")
	ErrConfig                = errors.New("invalid configuration")

	// Portal interaction errors
	ErrAuthentication  = errors.New("authentication failed")
	ErrElementTimeout  = errors.New("element did not appear in time")
	ErrElementNotFound = errors.New("element not found")
	ErrLeaseAction     = errors.New("lease action did not take effect")
	ErrPortUnreadable  = errors.New("port number unreadable")

	// Download client errors
	ErrReconcile = errors.New("download client reconciliation failed")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
