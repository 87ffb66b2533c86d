package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
)

// stubSleep replaces the backoff sleep with a recorder so schedules can be
// asserted deterministically. Restored automatically when the test ends.
func stubSleep(t *testing.T) *[]time.Duration {
	t.Helper()

	recorded := &[]time.Duration{}
	original := sleep
	sleep = func(ctx context.Context, d time.Duration) error {
		*recorded = append(*recorded, d)
		return nil
	}
	t.Cleanup(func() { sleep = original })

	return recorded
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, 3, config.MaxRetries)
	assert.Equal(t, 1*time.Second, config.BaseDelay)
	assert.Equal(t, 30*time.Second, config.MaxDelay)
	assert.Equal(t, 2.0, config.BackoffMultiple)
}

func TestExecute_FirstAttemptSuccess(t *testing.T) {
	sleeps := stubSleep(t)

	invocations := 0
	value, err := Execute(context.Background(), Options{Config: DefaultConfig()}, func(attempt int) (any, int, []byte, error) {
		invocations++
		return "ok", 200, nil, nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "ok", value)
	assert.Equal(t, 1, invocations, "Successful first attempt should invoke the operation exactly once")
	assert.Empty(t, *sleeps, "Successful first attempt should not sleep")
}

func TestExecute_SucceedsAfterRetries(t *testing.T) {
	sleeps := stubSleep(t)

	config := Config{MaxRetries: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 30 * time.Second, BackoffMultiple: 2.0}
	invocations := 0

	value, err := Execute(context.Background(), Options{Config: config}, func(attempt int) (any, int, []byte, error) {
		invocations++
		if invocations < 3 {
			return nil, 0, nil, fmt.Errorf("transient failure %d", invocations)
		}
		return "third time lucky", 0, nil, nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "third time lucky", value)
	assert.Equal(t, 3, invocations)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *sleeps)
}

func TestExecute_ExhaustsRetryBudget(t *testing.T) {
	stubSleep(t)

	config := Config{MaxRetries: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: time.Second, BackoffMultiple: 2.0}
	invocations := 0

	value, err := Execute(context.Background(), Options{Config: config}, func(attempt int) (any, int, []byte, error) {
		invocations++
		return nil, 0, nil, fmt.Errorf("failure on attempt %d", attempt)
	})

	assert.Nil(t, value)
	assert.Equal(t, 4, invocations, "MaxRetries=3 should produce exactly 4 attempts")
	assert.EqualError(t, err, "failure on attempt 3", "The surfaced error should come from the last attempt")
}

func TestExecute_BackoffSchedule(t *testing.T) {
	sleeps := stubSleep(t)

	config := Config{MaxRetries: 4, BaseDelay: 10 * time.Millisecond, MaxDelay: time.Minute, BackoffMultiple: 2.0}
	_, err := Execute(context.Background(), Options{Config: config}, func(attempt int) (any, int, []byte, error) {
		return nil, 0, nil, errors.New("always fails")
	})

	assert.Error(t, err)
	expected := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
		80 * time.Millisecond,
	}
	assert.Equal(t, expected, *sleeps, "Delay before the k-th retry should be BaseDelay * BackoffMultiple^(k-1)")
}

func TestExecute_DelayCappedAtMaxDelay(t *testing.T) {
	sleeps := stubSleep(t)

	config := Config{MaxRetries: 4, BaseDelay: 10 * time.Millisecond, MaxDelay: 25 * time.Millisecond, BackoffMultiple: 2.0}
	_, err := Execute(context.Background(), Options{Config: config}, func(attempt int) (any, int, []byte, error) {
		return nil, 0, nil, errors.New("always fails")
	})

	assert.Error(t, err)
	expected := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		25 * time.Millisecond,
		25 * time.Millisecond,
	}
	assert.Equal(t, expected, *sleeps)
}

func TestExecute_OnRetryHook(t *testing.T) {
	stubSleep(t)

	type retryCall struct {
		attempt int
		err     string
	}
	var calls []retryCall

	config := Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Second, BackoffMultiple: 2.0}
	_, err := Execute(context.Background(), Options{
		Config: config,
		OnRetry: func(attempt int, err error) {
			calls = append(calls, retryCall{attempt: attempt, err: err.Error()})
		},
	}, func(attempt int) (any, int, []byte, error) {
		return nil, 0, nil, fmt.Errorf("failure %d", attempt)
	})

	assert.Error(t, err)

	// Two retries happen; the final exhausting failure does not trigger the hook
	assert.Equal(t, []retryCall{
		{attempt: 1, err: "failure 0"},
		{attempt: 2, err: "failure 1"},
	}, calls)
}

func TestExecute_NonRetryableError(t *testing.T) {
	sleeps := stubSleep(t)

	terminal := errors.New("bad request")
	invocations := 0

	_, err := Execute(context.Background(), Options{
		Config:       Config{MaxRetries: 5, BaseDelay: time.Millisecond, MaxDelay: time.Second, BackoffMultiple: 2.0},
		ErrorChecker: func(err error, statusCode int, body []byte) bool { return false },
	}, func(attempt int) (any, int, []byte, error) {
		invocations++
		return nil, 400, nil, terminal
	})

	assert.Equal(t, terminal, err)
	assert.Equal(t, 1, invocations, "Non-retryable failure should not consume the retry budget")
	assert.Empty(t, *sleeps)
}

func TestExecute_ErrorCheckerArguments(t *testing.T) {
	stubSleep(t)

	var seenStatus int
	var seenBody []byte

	_, err := Execute(context.Background(), Options{
		Config: Config{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Second, BackoffMultiple: 2.0},
		ErrorChecker: func(err error, statusCode int, body []byte) bool {
			seenStatus = statusCode
			seenBody = body
			return false
		},
	}, func(attempt int) (any, int, []byte, error) {
		return nil, 503, []byte(`{"error":"overloaded"}`), errors.New("service unavailable")
	})

	assert.Error(t, err)
	assert.Equal(t, 503, seenStatus)
	assert.Equal(t, []byte(`{"error":"overloaded"}`), seenBody)
}

func TestExecute_NilCheckerRetriesEverything(t *testing.T) {
	stubSleep(t)

	invocations := 0
	_, err := Execute(context.Background(), Options{
		Config: Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Second, BackoffMultiple: 2.0},
	}, func(attempt int) (any, int, []byte, error) {
		invocations++
		return nil, 400, nil, errors.New("even client errors retry without a checker")
	})

	assert.Error(t, err)
	assert.Equal(t, 3, invocations)
}

func TestExecute_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	invocations := 0
	done := make(chan struct{})

	go func() {
		defer close(done)
		_, err := Execute(ctx, Options{
			Config: Config{MaxRetries: 3, BaseDelay: 5 * time.Second, MaxDelay: 30 * time.Second, BackoffMultiple: 2.0},
		}, func(attempt int) (any, int, []byte, error) {
			invocations++
			return nil, 0, nil, errors.New("keeps failing")
		})
		assert.ErrorIs(t, err, context.Canceled)
	}()

	// Let the first attempt fail and the backoff sleep begin, then cancel
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Execute did not return promptly after cancellation")
	}

	assert.Equal(t, 1, invocations, "Cancellation during backoff should prevent further attempts")
}

func TestExecute_NegativeMaxRetriesClamped(t *testing.T) {
	stubSleep(t)

	invocations := 0
	_, err := Execute(context.Background(), Options{
		Config: Config{MaxRetries: -5, BaseDelay: time.Millisecond, MaxDelay: time.Second, BackoffMultiple: 2.0},
	}, func(attempt int) (any, int, []byte, error) {
		invocations++
		return nil, 0, nil, errors.New("fails")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, invocations)
}

func TestExecute_AttemptNumbersPassedToOperation(t *testing.T) {
	stubSleep(t)

	var attempts []int
	_, err := Execute(context.Background(), Options{
		Config: Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Second, BackoffMultiple: 2.0},
	}, func(attempt int) (any, int, []byte, error) {
		attempts = append(attempts, attempt)
		return nil, 0, nil, errors.New("fails")
	})

	assert.Error(t, err)
	assert.Equal(t, []int{0, 1, 2}, attempts)
}

func TestConfig_UnmarshalYAML(t *testing.T) {
	config := DefaultConfig()
	err := yaml.Unmarshal([]byte("max_retries: 5\nbase_delay: 250ms\n"), &config)

	assert.NoError(t, err)
	assert.Equal(t, 5, config.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, config.BaseDelay)
	assert.Equal(t, 30*time.Second, config.MaxDelay, "Absent fields should keep their values")
	assert.Equal(t, 2.0, config.BackoffMultiple)
}

func TestConfig_UnmarshalYAMLRejectsBareNumbers(t *testing.T) {
	var config Config
	err := yaml.Unmarshal([]byte("base_delay: 500\n"), &config)

	assert.Error(t, err, "Delays need a unit")
}
