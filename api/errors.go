package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jrsteele09/specranking-client/internal/errors"
)

// Error is a failed remote call. It matches errors.ErrUnauthenticated, errors.ErrNotFound
// or errors.ErrRequestFailed under errors.Is depending on the status.
type Error struct {
	Status  int    // HTTP status, 200 when the body reported isSuccess=false
	Code    string // Backend error code, if any
	Message string // Backend message, suitable for display
	kind    error
}

func newError(status int, code json.RawMessage, message string) *Error {
	return &Error{
		Status:  status,
		Code:    rawCode(code),
		Message: message,
		kind:    kindForStatus(status),
	}
}

func kindForStatus(status int) error {
	switch status {
	case http.StatusUnauthorized:
		return errors.ErrUnauthenticated
	case http.StatusNotFound:
		return errors.ErrNotFound
	default:
		return errors.ErrRequestFailed
	}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v (status %d)", e.kind, e.Status)
	}
	return fmt.Sprintf("%v (status %d): %s", e.kind, e.Status, e.Message)
}

func (e *Error) Unwrap() error {
	return e.kind
}

// DisplayMessage returns a message suitable for a toast: the backend's message when
// present, otherwise a generic one per failure kind.
func DisplayMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	switch {
	case errors.Is(err, errors.ErrUnauthenticated), errors.Is(err, errors.ErrNotLoggedIn):
		return "Please log in to continue."
	case errors.Is(err, errors.ErrNotFound):
		return "The requested item no longer exists."
	case errors.Is(err, errors.ErrRequestInFlight):
		return "Please wait for the previous request to finish."
	default:
		return "Something went wrong. Please try again."
	}
}
