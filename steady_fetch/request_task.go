package steady_fetch

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/FrenchMajesty/steady-fetch/fetch"
	"github.com/FrenchMajesty/steady-fetch/utils/logger"
	"github.com/FrenchMajesty/steady-fetch/utils/retry"
	"github.com/google/uuid"
)

type TaskStatus int

const (
	TaskStatusPending TaskStatus = iota
	TaskStatusRunning
	TaskStatusCompleted
	TaskStatusFailed
)

// RequestTask is one HTTP request scheduled through the queue
type RequestTask struct {
	ID uuid.UUID

	request     fetch.Request
	priority    int
	retryConfig *retry.Config

	logger     logger.Logger
	verboseLog bool

	// Result and status delivery
	mu              sync.RWMutex
	status          TaskStatus
	resultChan      chan TaskResult
	statusChan      chan TaskStatus
	resultCallbacks []func(TaskResult)
}

// TaskResult is the terminal outcome of a task
type TaskResult struct {
	Response *fetch.Response
	Error    error

	// Attempts is how many times the transport was invoked
	Attempts int

	Duration time.Duration
}

// NewRequestTask creates a task for the given request with default priority
// and the default retry schedule
func NewRequestTask(request fetch.Request) *RequestTask {
	task := &RequestTask{
		ID:              uuid.New(),
		request:         request,
		resultChan:      make(chan TaskResult, 1),
		statusChan:      make(chan TaskStatus, 2),
		status:          TaskStatusPending,
		mu:              sync.RWMutex{},
		resultCallbacks: []func(TaskResult){},
		logger:          logger.NewNoopLogger(), // Quiet until SetLogger
	}

	return task
}

// SetPriority sets the dispatch priority; higher values dispatch first
func (t *RequestTask) SetPriority(priority int) *RequestTask {
	t.priority = priority
	return t
}

// SetRetryConfig sets the retry configuration for this task
func (t *RequestTask) SetRetryConfig(config retry.Config) *RequestTask {
	t.retryConfig = &config
	return t
}

// SetLogger sets the logger for this task
func (t *RequestTask) SetLogger(l logger.Logger) *RequestTask {
	t.logger = l
	return t
}

// SetVerboseLog turns on per-attempt logging while this task retries
func (t *RequestTask) SetVerboseLog(verbose bool) *RequestTask {
	t.verboseLog = verbose
	return t
}

// GetID returns the id of the task
func (t *RequestTask) GetID() uuid.UUID {
	return t.ID
}

// GetPriority returns the dispatch priority
func (t *RequestTask) GetPriority() int {
	return t.priority
}

// GetRequest returns the request this task will execute
func (t *RequestTask) GetRequest() fetch.Request {
	return t.request
}

// Host returns the request's host for budget metering, or "" when the URL
// does not parse
func (t *RequestTask) Host() string {
	parsed, err := url.Parse(t.request.URL)
	if err != nil {
		return ""
	}
	return parsed.Host
}

// GetStatus returns the status of the task
func (t *RequestTask) GetStatus() TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// SetStatus sets the status of the task
func (t *RequestTask) SetStatus(status TaskStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = status

	select {
	case t.statusChan <- status:
	default:
		// No listener or a full buffer, drop the update
	}
}

// AddResultCallback adds a callback invoked when the result is emitted
func (t *RequestTask) AddResultCallback(cb func(TaskResult)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resultCallbacks = append(t.resultCallbacks, cb)
}

// EmitResult emits the result to the task's dedicated channel
func (t *RequestTask) EmitResult(result TaskResult) {
	t.mu.RLock()
	callbacks := make([]func(TaskResult), len(t.resultCallbacks))
	copy(callbacks, t.resultCallbacks)
	t.mu.RUnlock()

	t.resultChan <- result

	for _, cb := range callbacks {
		cb(result)
	}
}

// ListenForResult listens for the result from the task's dedicated channel
func (t *RequestTask) ListenForResult() TaskResult {
	return <-t.resultChan
}

// ListenForStatus listens for the status from the task's dedicated channel
func (t *RequestTask) ListenForStatus() TaskStatus {
	return <-t.statusChan
}

// execute runs the request through the retry loop and packages the outcome.
// onRetry is invoked once per retry before its backoff sleep.
func (t *RequestTask) execute(ctx context.Context, doer fetch.Doer, onRetry func(attempt int, err error)) TaskResult {
	now := time.Now()

	attempts := 1
	opts := retry.Options{
		APIName: t.label(),
		Logger:  t.logger,
		Verbose: t.verboseLog,
		OnRetry: func(attempt int, err error) {
			attempts = attempt + 1
			if onRetry != nil {
				onRetry(attempt, err)
			}
		},
	}
	if t.retryConfig != nil {
		opts.Config = *t.retryConfig
	}

	response, err := fetch.Do(ctx, doer, t.request, opts)
	return TaskResult{
		Response: response,
		Error:    err,
		Attempts: attempts,
		Duration: time.Since(now),
	}
}

// label names the task's operation for logs
func (t *RequestTask) label() string {
	method := t.request.Method
	if method == "" {
		method = http.MethodGet
	}
	return method + " " + t.request.URL
}
