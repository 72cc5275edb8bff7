package core

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized means the session is missing, expired or rejected (HTTP 401).
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the session is valid but lacks permission (HTTP 403).
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
)

// APIError is a non-2xx response other than 401/403.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Message)
}

// Unwrap maps well-known statuses onto sentinels so errors.Is works.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	}
	return nil
}

// UserMessage returns text that is safe to show in a toast.
func UserMessage(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid username or password"
	case errors.Is(err, ErrForbidden):
		return "You do not have permission to perform this action"
	case errors.Is(err, ErrUnauthorized):
		return "Your session has expired, please log in again"
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return apiErr.Message
	case errors.Is(err, ErrNotFound):
		return "Record not found"
	default:
		return "The server could not complete the request"
	}
}
