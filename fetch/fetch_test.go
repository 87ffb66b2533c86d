package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FrenchMajesty/steady-fetch/utils/parallel"
	"github.com/FrenchMajesty/steady-fetch/utils/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// fastRetry returns retry options with millisecond delays so tests stay quick
func fastRetry(maxRetries int) retry.Options {
	return retry.Options{
		Config: retry.Config{
			MaxRetries:      maxRetries,
			BaseDelay:       1 * time.Millisecond,
			MaxDelay:        5 * time.Millisecond,
			BackoffMultiple: 2.0,
		},
	}
}

// jsonResponse builds an *http.Response suitable for mock returns
func jsonResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Status:     fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// TestDo_SuccessfulResponse tests that a 2xx response is returned decoded
func TestDo_SuccessfulResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 7, "name": "steady"}`))
	}))
	defer server.Close()

	resp, err := Do(context.Background(), server.Client(), Request{URL: server.URL}, fastRetry(3))

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, resp.Ok())

	var payload struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	assert.NoError(t, resp.DecodeJSON(&payload))
	assert.Equal(t, 7, payload.ID)
	assert.Equal(t, "steady", payload.Name)
}

// TestDo_ClientErrorFailsImmediately tests that a 400 skips the retry loop entirely
func TestDo_ClientErrorFailsImmediately(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"message": "missing field"}}`))
	}))
	defer server.Close()

	resp, err := Do(context.Background(), server.Client(), Request{URL: server.URL}, fastRetry(5))

	assert.Nil(t, resp)
	assert.EqualError(t, err, "HTTP 400: Bad Request")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "Client errors must not be retried")

	// The raw body rides along on the error for callers that want the envelope
	httpErr, ok := err.(*HTTPError)
	assert.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
	assert.Contains(t, string(httpErr.Body), "missing field")
}

// TestDo_RetriesServerErrors tests that 5xx responses are retried until success
func TestDo_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	resp, err := Do(context.Background(), server.Client(), Request{URL: server.URL}, fastRetry(3))

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "Should succeed on the third attempt")
}

// TestDo_RetriesTooManyRequests tests that 429 is the one 4xx that keeps retrying
func TestDo_RetriesTooManyRequests(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	resp, err := Do(context.Background(), server.Client(), Request{URL: server.URL}, fastRetry(3))

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

// TestDo_NetworkErrorRetried tests that transport failures are retried like 5xx
func TestDo_NetworkErrorRetried(t *testing.T) {
	mockDoer := NewMockDoer()
	mockDoer.On("Do", mock.Anything).Return(nil, fmt.Errorf("connection refused")).Twice()
	mockDoer.On("Do", mock.Anything).Return(jsonResponse(http.StatusOK, `{"ok": true}`), nil).Once()

	resp, err := Do(context.Background(), mockDoer, Request{URL: "http://api.test/things"}, fastRetry(3))

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	mockDoer.AssertNumberOfCalls(t, "Do", 3)
}

// TestDo_ExhaustsBudget tests that the last attempt's error surfaces after the budget runs out
func TestDo_ExhaustsBudget(t *testing.T) {
	mockDoer := NewMockDoer()
	mockDoer.On("Do", mock.Anything).Return(nil, fmt.Errorf("connection refused")).Twice()
	mockDoer.On("Do", mock.Anything).Return(jsonResponse(http.StatusServiceUnavailable, ``), nil).Once()

	resp, err := Do(context.Background(), mockDoer, Request{URL: "http://api.test/things"}, fastRetry(2))

	assert.Nil(t, resp)
	assert.EqualError(t, err, "HTTP 503: Service Unavailable", "Last error wins, not the first")
	mockDoer.AssertNumberOfCalls(t, "Do", 3)
}

// TestDo_RequestConstruction tests method, headers and JSON body marshalling
func TestDo_RequestConstruction(t *testing.T) {
	type createReq struct {
		Name string `json:"name"`
	}

	var (
		gotMethod      string
		gotContentType string
		gotAuth        string
		gotBody        []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	resp, err := Do(context.Background(), server.Client(), Request{
		URL:     server.URL + "/things",
		Method:  http.MethodPost,
		Headers: map[string]string{"Authorization": "Bearer token-123"},
		Body:    createReq{Name: "widget"},
	}, fastRetry(0))

	assert.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "Bearer token-123", gotAuth)
	assert.JSONEq(t, `{"name": "widget"}`, string(gotBody))
}

// TestDo_StringBodyPassthrough tests that string bodies are sent verbatim
func TestDo_StringBodyPassthrough(t *testing.T) {
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, err := Do(context.Background(), server.Client(), Request{
		URL:    server.URL,
		Method: http.MethodPost,
		Body:   `{"already": "encoded"}`,
	}, fastRetry(0))

	assert.NoError(t, err)
	assert.Equal(t, `{"already": "encoded"}`, string(gotBody))
}

// TestDo_BodyRebuiltPerAttempt tests that retried requests resend the full body
func TestDo_BodyRebuiltPerAttempt(t *testing.T) {
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(body))
		if len(bodies) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, err := Do(context.Background(), server.Client(), Request{
		URL:    server.URL,
		Method: http.MethodPost,
		Body:   []byte(`{"n": 1}`),
	}, fastRetry(2))

	assert.NoError(t, err)
	assert.Equal(t, []string{`{"n": 1}`, `{"n": 1}`}, bodies, "Both attempts should carry the body")
}

// TestResponse_Get tests dotted-path access into the JSON body
func TestResponse_Get(t *testing.T) {
	resp := &Response{Body: []byte(`{"data": {"items": [{"id": "a"}, {"id": "b"}]}}`)}

	assert.Equal(t, "b", resp.Get("data.items.1.id").String())
	assert.Equal(t, int64(2), resp.Get("data.items.#").Int())
	assert.False(t, resp.Get("data.missing").Exists())
}

// TestJSON_DecodesInto tests the decode convenience wrapper
func TestJSON_DecodesInto(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"count": 42}`))
	}))
	defer server.Close()

	var out struct {
		Count int `json:"count"`
	}
	err := JSON(context.Background(), server.Client(), Request{URL: server.URL}, &out, fastRetry(0))

	assert.NoError(t, err)
	assert.Equal(t, 42, out.Count)
}

// TestJSON_MalformedBody tests that decode failures surface as errors
func TestJSON_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	var out map[string]any
	err := JSON(context.Background(), server.Client(), Request{URL: server.URL}, &out, fastRetry(0))

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "decode response body")
}

// TestAll_KeyedResults tests concurrent requests with independent retry sessions
func TestAll_KeyedResults(t *testing.T) {
	var profileCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/profile":
			// Fail the first profile attempt so its session retries alone
			if atomic.AddInt32(&profileCalls, 1) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write([]byte(`{"name": "dev"}`))
		case "/settings":
			w.Write([]byte(`{"theme": "dark"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	results := All(context.Background(), server.Client(), map[string]Request{
		"profile":  {URL: server.URL + "/profile"},
		"settings": {URL: server.URL + "/settings"},
		"missing":  {URL: server.URL + "/nope"},
	}, fastRetry(2))

	profile, err := parallel.GetAs[*Response](results, "profile")
	assert.NoError(t, err)
	assert.Equal(t, "dev", profile.Get("name").String())

	settings, err := parallel.GetAs[*Response](results, "settings")
	assert.NoError(t, err)
	assert.Equal(t, "dark", settings.Get("theme").String())

	_, err = parallel.GetAs[*Response](results, "missing")
	assert.EqualError(t, err, "HTTP 404: Not Found", "404 is terminal, no retries")
}

// TestRetryableStatus tests the default classification rule
func TestRetryableStatus(t *testing.T) {
	assert.True(t, RetryableStatus(fmt.Errorf("dial tcp: refused"), 0, nil), "Network errors retry")
	assert.True(t, RetryableStatus(nil, http.StatusTooManyRequests, nil), "429 retries")
	assert.True(t, RetryableStatus(nil, http.StatusInternalServerError, nil), "5xx retries")
	assert.True(t, RetryableStatus(nil, http.StatusBadGateway, nil))
	assert.False(t, RetryableStatus(nil, http.StatusBadRequest, nil), "400 is terminal")
	assert.False(t, RetryableStatus(nil, http.StatusUnauthorized, nil))
	assert.False(t, RetryableStatus(nil, http.StatusNotFound, nil))
	assert.False(t, RetryableStatus(nil, http.StatusUnprocessableEntity, nil))
}

// TestDo_CustomErrorChecker tests that callers can replace the default rule
func TestDo_CustomErrorChecker(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	opts := fastRetry(5)
	opts.ErrorChecker = func(err error, statusCode int, responseBody []byte) bool {
		return false // nothing retries
	}

	_, err := Do(context.Background(), server.Client(), Request{URL: server.URL}, opts)

	assert.EqualError(t, err, "HTTP 500: Internal Server Error")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
