package fetch

import (
	"net/http"
	"time"
)

// Doer executes a single HTTP round trip. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultClient returns the HTTP client used when the caller does not provide one
func DefaultClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
	}
}
