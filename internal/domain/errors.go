package domain

import "errors"

var (
	// ErrValidation signals a missing or malformed required field.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound signals that a referenced user, shop or request does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden signals that the actor may not touch the target resource.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict signals a duplicate key or a transition the current state does not allow.
	ErrConflict = errors.New("conflict")
	// ErrStorage signals a failure of the underlying persistence layer.
	ErrStorage = errors.New("storage failure")
	// ErrUnauthorized signals a missing, unknown or expired bearer token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTokenStoreNotReady signals that the token store has not been loaded yet.
	// This can happen during startup when the DB isn't ready.
	ErrTokenStoreNotReady = errors.New("token store not ready")
)
