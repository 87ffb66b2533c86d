package steady_fetch

import (
	"context"
	"fmt"
	"sync"

	"github.com/FrenchMajesty/steady-fetch/fetch"
)

// workerPool runs dispatched tasks on a fixed set of workers. Workers pull
// from one shared channel; ordering is the dispatch loop's business, not
// the pool's.
type workerPool struct {
	doer  fetch.Doer
	queue *Queue
	size  int

	tasks chan *RequestTask
	quit  chan struct{}
	wg    sync.WaitGroup

	mu      sync.RWMutex
	running map[int]*RequestTask
}

func newWorkerPool(size int, doer fetch.Doer, queue *Queue) *workerPool {
	wp := &workerPool{
		doer:    doer,
		queue:   queue,
		size:    size,
		tasks:   make(chan *RequestTask, size*2),
		quit:    make(chan struct{}),
		running: make(map[int]*RequestTask, size),
	}

	for id := 0; id < size; id++ {
		wp.wg.Add(1)
		go wp.work(id)
	}
	return wp
}

// Dispatch hands a task to a worker, aborting if shutdown wins the race
func (wp *workerPool) Dispatch(task *RequestTask, quit <-chan struct{}) {
	select {
	case wp.tasks <- task:
	case <-quit:
	}
}

// Stop signals the workers and waits for in-flight tasks to finish
func (wp *workerPool) Stop() {
	close(wp.quit)
	wp.wg.Wait()
}

// GetWorkerCount returns the fixed pool size
func (wp *workerPool) GetWorkerCount() int {
	return wp.size
}

// GetBusyWorkers returns how many workers hold a task right now
func (wp *workerPool) GetBusyWorkers() int {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	return len(wp.running)
}

func (wp *workerPool) work(id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-wp.quit:
			return
		case task := <-wp.tasks:
			wp.execute(id, task)
		}
	}
}

// execute drives one task through its retry session and delivers the outcome
func (wp *workerPool) execute(id int, task *RequestTask) {
	wp.setRunning(id, task)
	defer wp.setRunning(id, nil)

	task.SetStatus(TaskStatusRunning)
	wp.queue.emitEvent(EventTaskRunning, task.ID, map[string]any{
		"worker_id": id,
	})

	result := wp.runTask(task)

	wp.queue.reportOutcome(result.Error)

	// Status flips before the result lands so waiters observe the final state
	if result.Error == nil {
		task.SetStatus(TaskStatusCompleted)
	} else {
		task.SetStatus(TaskStatusFailed)
	}
	task.EmitResult(result)
}

// runTask executes the task, containing panics so one bad task cannot take
// the worker down
func (wp *workerPool) runTask(task *RequestTask) (result TaskResult) {
	defer func() {
		if r := recover(); r != nil {
			result = TaskResult{
				Error: fmt.Errorf("panic in task execution: %v", r),
			}
		}
	}()

	return task.execute(context.Background(), wp.doer, func(attempt int, err error) {
		wp.queue.emitEvent(EventTaskRetrying, task.ID, map[string]any{
			"attempt": attempt,
			"error":   err.Error(),
		})
	})
}

// setRunning records which task a worker holds; nil clears the slot
func (wp *workerPool) setRunning(id int, task *RequestTask) {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if task == nil {
		delete(wp.running, id)
		return
	}
	wp.running[id] = task
}
