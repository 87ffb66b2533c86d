package api

import "fmt"

// APIError carries the message a failing endpoint put in its error envelope.
// It wraps the underlying transport error, so errors.As still reaches the
// *fetch.HTTPError with the raw status and body.
type APIError struct {
	StatusCode int
	Message    string
	cause      error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.cause
}
