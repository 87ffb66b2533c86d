package fetch

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// HTTPError is the terminal error for a non-2xx response. Every failing status
// produces the same message shape, whether the failure was retried or not.
type HTTPError struct {
	StatusCode int
	StatusText string

	// Body carries the raw response body so callers can inspect API error
	// envelopes; it is not part of the message.
	Body []byte
}

// NewHTTPError builds the error for a failing response
func NewHTTPError(resp *http.Response, body []byte) *HTTPError {
	return &HTTPError{
		StatusCode: resp.StatusCode,
		StatusText: statusText(resp),
		Body:       body,
	}
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.StatusText)
}

// statusText extracts the reason phrase from the response status line, falling
// back to the standard text for the code
func statusText(resp *http.Response) string {
	prefix := strconv.Itoa(resp.StatusCode) + " "
	if strings.HasPrefix(resp.Status, prefix) {
		return strings.TrimPrefix(resp.Status, prefix)
	}
	return http.StatusText(resp.StatusCode)
}
