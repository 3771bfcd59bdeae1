package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalid       = errors.New("invalid")

	ErrLockUnavailable  = errors.New("lock service unavailable")
	ErrLockReleased     = errors.New("write lock already released")
	ErrUnloaded         = errors.New("load context unloaded")
	ErrManagerClosed    = errors.New("reload manager closed")
	ErrAlreadyActivated = errors.New("component already activated")
	ErrDisposed         = errors.New("component disposed")
)
