package api

import "os"

// TokenProvider supplies the bearer token attached to outgoing requests. An
// empty token leaves the request unauthenticated.
type TokenProvider interface {
	Token() (string, error)
}

// StaticToken is a fixed token
type StaticToken string

func (t StaticToken) Token() (string, error) {
	return string(t), nil
}

// TokenFunc adapts a function into a TokenProvider
type TokenFunc func() (string, error)

func (f TokenFunc) Token() (string, error) {
	return f()
}

// EnvToken names an environment variable that is read on every request, so
// rotated credentials are picked up without a restart
type EnvToken string

func (e EnvToken) Token() (string, error) {
	return os.Getenv(string(e)), nil
}
