package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/FrenchMajesty/steady-fetch/utils/parallel"
	"github.com/FrenchMajesty/steady-fetch/utils/retry"
	"github.com/tidwall/gjson"
)

// Request describes a single HTTP call to be executed with retries
type Request struct {
	URL string

	// Method defaults to GET when empty
	Method string

	// Headers are applied after defaults, so callers can override Content-Type
	Headers map[string]string

	// Body is sent as-is for []byte and string payloads and marshalled to JSON
	// for anything else. Non-nil bodies default Content-Type to application/json.
	Body any
}

// Response is the decoded outcome of a successful request
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// Ok reports whether the status code is in the 2xx range
func (r *Response) Ok() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// DecodeJSON unmarshals the response body into v
func (r *Response) DecodeJSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Get reads a field from the JSON body by dotted path
func (r *Response) Get(path string) gjson.Result {
	return gjson.GetBytes(r.Body, path)
}

// RetryableStatus is the default retry rule for HTTP calls. Client errors in
// the 4xx range are terminal except 429; network failures, 429 and 5xx retry.
func RetryableStatus(err error, statusCode int, responseBody []byte) bool {
	if statusCode >= 400 && statusCode < 500 && statusCode != http.StatusTooManyRequests {
		return false
	}
	return true
}

// Do executes the request through the retry loop and returns the response once
// a 2xx arrives. Non-2xx responses surface as *HTTPError; the error of the
// final attempt is returned when the budget runs out.
func Do(ctx context.Context, doer Doer, req Request, opts retry.Options) (*Response, error) {
	if doer == nil {
		doer = DefaultClient()
	}
	if opts.ErrorChecker == nil {
		opts.ErrorChecker = RetryableStatus
	}
	if opts.Config == (retry.Config{}) {
		opts.Config = retry.DefaultConfig()
	}
	if opts.APIName == "" {
		opts.APIName = requestLabel(req)
	}

	value, err := retry.Execute(ctx, opts, func(attempt int) (any, int, []byte, error) {
		return attemptRequest(ctx, doer, req)
	})
	if err != nil {
		return nil, err
	}
	return value.(*Response), nil
}

// JSON executes the request and unmarshals the response body into out. A nil
// out discards the body after the status check.
func JSON(ctx context.Context, doer Doer, req Request, out any, opts retry.Options) error {
	resp, err := Do(ctx, doer, req, opts)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := resp.DecodeJSON(out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// All executes keyed requests concurrently, each with its own independent
// retry session. Use parallel.GetAs to pull typed responses out of the results.
func All(ctx context.Context, doer Doer, requests map[string]Request, opts retry.Options) parallel.Results {
	builder := parallel.NewBuilder()
	for key, req := range requests {
		request := req
		builder.Add(key, func(ctx context.Context) (any, error) {
			return Do(ctx, doer, request, opts)
		})
	}
	return builder.Run(ctx)
}

// attemptRequest performs one transport round trip and classifies the outcome
func attemptRequest(ctx context.Context, doer Doer, req Request) (any, int, []byte, error) {
	httpReq, err := req.build(ctx)
	if err != nil {
		return nil, 0, nil, err
	}

	resp, err := doer.Do(httpReq)
	if err != nil {
		// Transport-level failure, no status to report
		return nil, 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, nil, fmt.Errorf("read response body: %w", err)
	}

	response := &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       body,
	}
	if !response.Ok() {
		return nil, resp.StatusCode, body, NewHTTPError(resp, body)
	}
	return response, resp.StatusCode, body, nil
}

// build constructs the underlying http.Request. Called once per attempt so
// body readers are fresh on every retry.
func (r Request) build(ctx context.Context) (*http.Request, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var reader io.Reader
	switch body := r.Body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(body)
	case string:
		reader = strings.NewReader(body)
	default:
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, r.URL, reader)
	if err != nil {
		return nil, err
	}

	if reader != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for key, value := range r.Headers {
		httpReq.Header.Set(key, value)
	}
	return httpReq, nil
}

// requestLabel names the operation for logs and retry hooks
func requestLabel(req Request) string {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	return method + " " + req.URL
}
