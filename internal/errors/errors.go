package errors

import (
	"errors"
	"fmt"
)

// Common error types for the SpecRanking client
var (
	// Token errors
	ErrInvalidToken  = errors.New("invalid token")
	ErrRefreshFailed = errors.New("token refresh failed")
	ErrStaleSession  = errors.New("session superseded")
	ErrNotLoggedIn   = errors.New("not logged in")
	ErrMissingBearer = errors.New("missing bearer token in response")

	// Remote call errors
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNotFound        = errors.New("not found")
	ErrRequestFailed   = errors.New("request failed")
	ErrTransport       = errors.New("transport error")

	// Bookmark errors
	ErrRequestInFlight = errors.New("request already in flight")

	// OAuth login errors
	ErrInvalidState    = errors.New("invalid state parameter")
	ErrLoginTimeout    = errors.New("login timed out")
	ErrUnknownProvider = errors.New("unknown oauth provider")

	// General errors
	ErrInternal    = errors.New("internal error")
	ErrUnsupported = errors.New("unsupported operation")
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

// New returns an error that formats as the given text
func New(text string) error {
	return errors.New(text)
}
