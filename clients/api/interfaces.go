package api

import "context"

// ClientInterface is the request surface of the API client, for mocking
type ClientInterface interface {
	Get(ctx context.Context, path string, out any) error
	Delete(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body any, out any) error
	Put(ctx context.Context, path string, body any, out any) error
	PatchJSON(ctx context.Context, path string, fields map[string]any, out any) error
}
