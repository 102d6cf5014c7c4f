package lanehq

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound matches any 404 answer, including an unknown organization or board.
	ErrNotFound = errors.New("lanehq: not found")
	// ErrUnauthorized matches 401 and 403 answers.
	ErrUnauthorized = errors.New("lanehq: not authorized")
	// ErrUnknownLane matches a move to a lane the server does not have (422).
	ErrUnknownLane = errors.New("lanehq: unknown lane")
	// ErrConflict matches 409 answers.
	ErrConflict = errors.New("lanehq: conflict")
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	// Message is the server's "error" field.
	Message string
	// State is the resolution state on 404s ("not_found").
	State string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("lanehq: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("lanehq: HTTP %d: %s", e.StatusCode, e.Message)
}

// Is maps status codes onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrUnknownLane:
		return e.StatusCode == http.StatusUnprocessableEntity
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	}
	return false
}
