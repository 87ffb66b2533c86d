package parallel

import (
	"context"
	"fmt"
)

// Task is one unit of keyed work driven by Run
type Task func(ctx context.Context) (any, error)

// Result holds the value and error a task finished with
type Result struct {
	Value any
	Error error
}

// Results maps task keys to their outcomes
type Results map[string]Result

// Builder collects keyed tasks for a parallel fan-out
type Builder struct {
	tasks map[string]Task
}

// NewBuilder starts an empty task set
func NewBuilder() *Builder {
	return &Builder{
		tasks: make(map[string]Task),
	}
}

// Add registers a task under its key. Adding the same key twice replaces the
// earlier task.
func (b *Builder) Add(key string, task Task) *Builder {
	b.tasks[key] = task
	return b
}

// Run executes every task in its own goroutine and blocks until all finish.
// A panicking task becomes that key's error instead of crashing the fan-out.
func (b *Builder) Run(ctx context.Context) Results {
	return b.run(ctx, len(b.tasks))
}

// RunLimit behaves like Run but keeps at most limit tasks in flight at once
func (b *Builder) RunLimit(ctx context.Context, limit int) Results {
	if limit < 1 {
		limit = 1
	}
	return b.run(ctx, limit)
}

type keyedResult struct {
	key string
	res Result
}

func (b *Builder) run(ctx context.Context, limit int) Results {
	if len(b.tasks) == 0 {
		return Results{}
	}

	// Buffered to task count, so no goroutine blocks on send
	outcomes := make(chan keyedResult, len(b.tasks))
	slots := make(chan struct{}, limit)

	for key, task := range b.tasks {
		go func(k string, t Task) {
			slots <- struct{}{}
			defer func() { <-slots }()

			value, err := runTask(ctx, t)
			outcomes <- keyedResult{key: k, res: Result{Value: value, Error: err}}
		}(key, task)
	}

	results := make(Results, len(b.tasks))
	for range b.tasks {
		outcome := <-outcomes
		results[outcome.key] = outcome.res
	}
	return results
}

// runTask invokes one task, containing panics so one bad task cannot take
// the whole fan-out down
func runTask(ctx context.Context, task Task) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("panic in parallel task: %v", r)
		}
	}()

	return task(ctx)
}

// Get retrieves a typed result, inferring the type from the task function's
// signature so call sites that still have the function need no type argument
func Get[T any](results Results, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	result, ok := results[key]
	if !ok {
		return zero, fmt.Errorf("no result under key %q", key)
	}
	if result.Error != nil {
		return zero, result.Error
	}

	value, ok := result.Value.(T)
	if !ok {
		return zero, fmt.Errorf("result under key %q is %T, not %T", key, result.Value, zero)
	}
	return value, nil
}

// GetAs retrieves a typed result with an explicit type parameter, for callers
// that know the type without having the task function at hand
func GetAs[T any](results Results, key string) (T, error) {
	return Get(results, key, func(ctx context.Context) (T, error) {
		var zero T
		return zero, nil
	})
}
