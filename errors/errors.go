package errors

import "fmt"

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no words have been found")

	// Command rejection taxonomy. Every rejected command maps to exactly one
	// of these and is reported only to the originating connection.
	ErrAuthorizationMismatch = fmt.Errorf("acting identity does not match claimed identity")
	ErrPermissionDenied      = fmt.Errorf("permission denied")
	ErrNotFound              = fmt.Errorf("not found")
	ErrInvalidFormat         = fmt.Errorf("invalid format")
	ErrStateConflict         = fmt.Errorf("state conflict")
)
