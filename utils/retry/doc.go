// Package retry runs failure-prone operations repeatedly with exponential
// backoff until one attempt succeeds or the attempt budget runs out.
//
// Two entry points cover the two shapes a caller usually has. Execute is the
// low-level loop for HTTP-style operations that report a status code and body
// alongside the error. Executor wraps the same loop in a stateful session for
// callers that want to poll the settled outcome (result, error, attempt count)
// instead of blocking on a return value.
//
// Usage:
//
//	ctx := context.Background()
//	opts := retry.Options{
//	    Config: retry.DefaultConfig(),
//	    ErrorChecker: func(err error, statusCode int, responseBody []byte) bool {
//	        // Retry on throttling and server errors
//	        return statusCode >= 500 || statusCode == 429
//	    },
//	    APIName: "BillingAPI",
//	}
//
//	result, err := retry.Execute(ctx, opts, func(attempt int) (any, int, []byte, error) {
//	    resp, status, body, err := callBillingAPI()
//	    return resp, status, body, err
//	})
//
// Or with the session wrapper:
//
//	exec := retry.NewExecutor[string]().
//	    SetRetryConfig(retry.DefaultConfig()).
//	    SetName("profile")
//	value, err := exec.Execute(ctx, loadProfile)
//	state := exec.State() // Result, Err, Retries, InFlight
//
// Schedule:
//
// Config controls the schedule. MaxRetries caps how many times a failed
// attempt is repeated, BaseDelay seeds the first wait, BackoffMultiple grows
// each subsequent wait, and MaxDelay clamps the growth. The wait before
// retry n is BaseDelay * BackoffMultiple^(n-1), capped at MaxDelay. Delays
// are inserted only between attempts, never before the first one or after
// the last one. Zero or negative fields fall back to the DefaultConfig
// values, so a partially filled Config is safe to use.
//
// Retry Decisions:
//
// The ErrorChecker decides whether a failure is worth retrying. Execute hands
// it the error plus the HTTP status code and response body from the attempt;
// Executor uses a plain func(error) bool since its operations have no HTTP
// shape. A nil checker retries every failure.
//
// Cancellation:
//
// Both entry points stop as soon as the context is cancelled, including
// mid-backoff, and return the context's error.
package retry
