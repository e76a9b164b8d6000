package apperrors

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrUnknownCanonicalState = errors.New("unknown canonical state")
	ErrPermissionDenied      = errors.New("permission denied")
	ErrAuditWriteFailed      = errors.New("audit write failed")
	ErrTransient             = errors.New("transient remote failure")
	ErrInvariantViolation    = errors.New("mapping invariant violation")
	ErrSessionNotFound       = errors.New("reconciliation session not found")
	ErrSessionCommitting     = errors.New("reconciliation session is committing")
)
