// Package common defines shared constants and sentinel errors used across
// the account service layers. Callers should use errors.Is / errors.As to
// match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("forbidden")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
)

// UniqueViolationError reports that the store rejected a write because another
// live record already holds the same value for Field.
type UniqueViolationError struct {
	Field string
	Err   error
}

func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("unique violation on %s: %v", e.Field, e.Err)
}

func (e *UniqueViolationError) Unwrap() error { return e.Err }
