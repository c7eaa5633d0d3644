package errors

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalid      = errors.New("invalid")
	ErrConflict     = errors.New("conflict")
	ErrTooMany      = errors.New("too many requests")
	ErrInternal     = errors.New("internal")
	ErrNoFiles      = errors.New("no files provided")
	ErrBatchFailed  = errors.New("all files failed to process")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
