package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the storage, service and server layers.
// Callers match them with errors.Is; the server maps them to status codes.
var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrUnknownAccount     = fmt.Errorf("%w: unknown account", ErrValidation)
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotSignedIn        = errors.New("not signed in")
	ErrLoading            = errors.New("ledger is still loading")
	ErrSyncBusy           = errors.New("price sync already running")
)

// Validationf builds an error wrapping ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}
