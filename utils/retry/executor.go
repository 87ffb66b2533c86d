package retry

import (
	"context"
	"sync"

	"github.com/FrenchMajesty/steady-fetch/utils/logger"
)

// State is a snapshot of a retry session owned by an Executor. Result and Err
// are never both set: Result (with HasResult) is present only when the most
// recent attempt succeeded, Err only on terminal failure. Retries counts the
// retries dispatched in the current execution; it stays 0 when the first try
// succeeds and resets when a new execution starts.
type State[T any] struct {
	Result    T
	HasResult bool
	Err       error
	InFlight  bool
	Retries   int
}

// Executor wraps an operation with retry logic and tracks the outcome of the
// most recent execution. Individual state writes are guarded by a mutex, but
// concurrent Execute calls on one Executor interleave their writes
// non-deterministically; run one logical session per Executor.
type Executor[T any] struct {
	mu    sync.RWMutex
	state State[T]

	config     Config
	checker    func(err error) bool
	onRetry    func(attempt int, err error)
	verboseLog bool
	logger     logger.Logger
	name       string
}

// NewExecutor creates an executor with the default retry configuration
func NewExecutor[T any]() *Executor[T] {
	return &Executor[T]{
		config: DefaultConfig(),
		logger: logger.NewNoopLogger(), // Default to noop
	}
}

// SetRetryConfig sets the retry configuration for this executor
func (e *Executor[T]) SetRetryConfig(config Config) *Executor[T] {
	e.config = config
	return e
}

// SetErrorChecker sets the classifier deciding whether an error is retryable
func (e *Executor[T]) SetErrorChecker(checker func(err error) bool) *Executor[T] {
	e.checker = checker
	return e
}

// SetOnRetry sets the hook invoked once per retry, before the backoff sleep
func (e *Executor[T]) SetOnRetry(hook func(attempt int, err error)) *Executor[T] {
	e.onRetry = hook
	return e
}

// SetLogger sets the logger for this executor
func (e *Executor[T]) SetLogger(l logger.Logger) *Executor[T] {
	e.logger = l
	return e
}

// SetVerboseLog sets the verbose logging flag for retry operations
func (e *Executor[T]) SetVerboseLog(verbose bool) *Executor[T] {
	e.verboseLog = verbose
	return e
}

// SetName sets the label used in log lines for this executor's operations
func (e *Executor[T]) SetName(name string) *Executor[T] {
	e.name = name
	return e
}

// Execute runs op through the executor's backoff schedule and records the
// outcome in its state. The returned value and error mirror what the state
// records: the success value, or the last attempt's error after exhaustion.
func (e *Executor[T]) Execute(ctx context.Context, op func(ctx context.Context) (T, error)) (T, error) {
	// A new execution clears the previous error and retry count but keeps the
	// previous result until the outcome replaces it.
	e.mu.Lock()
	e.state.InFlight = true
	e.state.Err = nil
	e.state.Retries = 0
	e.mu.Unlock()

	opts := Options{
		Config:  e.config,
		APIName: e.name,
		Logger:  e.logger,
		Verbose: e.verboseLog,
		OnRetry: func(attempt int, err error) {
			e.mu.Lock()
			e.state.Retries++
			e.mu.Unlock()

			if e.onRetry != nil {
				e.onRetry(attempt, err)
			}
		},
	}
	if e.checker != nil {
		checker := e.checker
		opts.ErrorChecker = func(err error, _ int, _ []byte) bool {
			return checker(err)
		}
	}

	value, err := Execute(ctx, opts, func(attempt int) (any, int, []byte, error) {
		result, opErr := op(ctx)
		return result, 0, nil, opErr
	})

	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.InFlight = false

	if err != nil {
		var zero T
		e.state.Err = err
		e.state.Result = zero
		e.state.HasResult = false
		return zero, err
	}

	result, _ := value.(T)
	e.state.Result = result
	e.state.HasResult = true
	e.state.Err = nil
	return result, nil
}

// Reset synchronously clears the state back to its initial values. It does not
// cancel an in-flight execution; a concurrently resolving execution may still
// mutate state after Reset returns.
func (e *Executor[T]) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = State[T]{}
}

// State returns a consistent snapshot of the executor's state
func (e *Executor[T]) State() State[T] {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}
