package api

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/FrenchMajesty/steady-fetch/fetch"
	"github.com/FrenchMajesty/steady-fetch/offline"
	"github.com/FrenchMajesty/steady-fetch/rate_limit"
	"github.com/FrenchMajesty/steady-fetch/utils/logger"
	"github.com/FrenchMajesty/steady-fetch/utils/retry"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Options configures a Client
type Options struct {
	// BaseURL is the prefix every request path is joined to. Required.
	BaseURL string

	HTTP   fetch.Doer
	Tokens TokenProvider

	// Retry applies to every request; the zero value means the defaults
	Retry retry.Config

	// Limiter meters requests against the host's budget when set
	Limiter rate_limit.Backend

	// Monitor receives connectivity reports from live traffic when set
	Monitor *offline.Monitor

	Logger  logger.Logger
	Verbose bool
}

// Client is a JSON API client with bearer auth, retries, budget metering and
// connectivity reporting. Safe for concurrent use.
type Client struct {
	baseURL    string
	host       string
	http       fetch.Doer
	tokens     TokenProvider
	retry      retry.Config
	limiter    rate_limit.Backend
	monitor    *offline.Monitor
	logger     logger.Logger
	verboseLog bool
}

// Ensure Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)

// New creates a client for the API rooted at opts.BaseURL
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("api: BaseURL is required")
	}
	parsed, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("api: invalid BaseURL: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("api: BaseURL %q has no host", opts.BaseURL)
	}

	if opts.HTTP == nil {
		opts.HTTP = fetch.DefaultClient()
	}
	if opts.Tokens == nil {
		opts.Tokens = StaticToken("")
	}
	if opts.Retry == (retry.Config{}) {
		opts.Retry = retry.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoopLogger()
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		host:       parsed.Host,
		http:       opts.HTTP,
		tokens:     opts.Tokens,
		retry:      opts.Retry,
		limiter:    opts.Limiter,
		monitor:    opts.Monitor,
		logger:     opts.Logger,
		verboseLog: opts.Verbose,
	}, nil
}

// Get fetches path and decodes the JSON response into out
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// Delete issues a DELETE to path and decodes any JSON response into out
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodDelete, path, nil, out)
}

// Post sends body as JSON to path and decodes the response into out
func (c *Client) Post(ctx context.Context, path string, body any, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

// Put sends body as JSON to path and decodes the response into out
func (c *Client) Put(ctx context.Context, path string, body any, out any) error {
	return c.do(ctx, http.MethodPut, path, body, out)
}

// PatchJSON assembles a PATCH body from dotted field paths, so callers can
// update nested fields without declaring the whole document:
//
//	client.PatchJSON(ctx, "/users/7", map[string]any{
//		"profile.name":   "Ada",
//		"settings.theme": "dark",
//	}, nil)
func (c *Client) PatchJSON(ctx context.Context, path string, fields map[string]any, out any) error {
	body := []byte(`{}`)
	var err error
	for fieldPath, value := range fields {
		body, err = sjson.SetBytes(body, fieldPath, value)
		if err != nil {
			return fmt.Errorf("assemble patch body: %w", err)
		}
	}
	return c.do(ctx, http.MethodPatch, path, body, out)
}

// do runs one API call through budget metering, the retry loop and envelope
// error extraction
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	headers := map[string]string{
		"Accept":       "application/json",
		"X-Request-ID": uuid.NewString(),
	}

	token, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("resolve token: %w", err)
	}
	if token != "" {
		headers["Authorization"] = "Bearer " + token
	}

	if err := c.waitForBudget(ctx); err != nil {
		return err
	}

	resp, err := fetch.Do(ctx, c.http, fetch.Request{
		URL:     c.baseURL + path,
		Method:  method,
		Headers: headers,
		Body:    body,
	}, retry.Options{
		Config:  c.retry,
		APIName: method + " " + path,
		Logger:  c.logger,
		Verbose: c.verboseLog,
	})

	c.report(err)

	if err != nil {
		return c.wrapError(err)
	}
	if out == nil {
		return nil
	}
	if err := resp.DecodeJSON(out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// waitForBudget blocks until the host has request budget, then consumes one.
// No-op without a limiter.
func (c *Client) waitForBudget(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}

	blocked := false
	for c.limiter.BudgetAvailable(c.host) < 1 {
		if !blocked {
			blocked = true
			c.logger.Printf("APIClient: budget exhausted for %s, waiting %v",
				c.host, c.limiter.TimeUntilReset())
		}

		// Wait out the window with a small stagger so blocked callers don't
		// all wake at once
		wait := c.limiter.TimeUntilReset() + time.Duration(rand.Intn(100))*time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return c.limiter.RecordRequest(c.host)
}

// report feeds the outcome to the offline monitor. An HTTP error still counts
// as connectivity; only transport failures count against it.
func (c *Client) report(err error) {
	if c.monitor == nil {
		return
	}
	if err == nil {
		c.monitor.ReportSuccess()
		return
	}

	var httpErr *fetch.HTTPError
	if errors.As(err, &httpErr) {
		c.monitor.ReportSuccess()
		return
	}
	c.monitor.ReportFailure(err)
}

// wrapError lifts the server's error envelope into an *APIError when present
func (c *Client) wrapError(err error) error {
	var httpErr *fetch.HTTPError
	if !errors.As(err, &httpErr) {
		return err
	}

	message := extractErrorMessage(httpErr.Body)
	if message == "" {
		message = httpErr.StatusText
	}
	return &APIError{
		StatusCode: httpErr.StatusCode,
		Message:    message,
		cause:      httpErr,
	}
}

// extractErrorMessage pulls the first populated field out of the common
// envelope shapes: {"error": {"message": ...}}, {"message": ...}, {"detail": ...}
func extractErrorMessage(body []byte) string {
	for _, path := range []string{"error.message", "message", "detail"} {
		if value := gjson.GetBytes(body, path); value.Exists() && value.String() != "" {
			return value.String()
		}
	}
	return ""
}
