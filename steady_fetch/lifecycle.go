package steady_fetch

import (
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
)

// Start starts the queue's background goroutines. NewQueue calls it; calling
// it again is a no-op.
func (q *Queue) Start() {
	q.startOnce.Do(func() {
		q.wg.Add(2)
		go func() {
			defer q.wg.Done()
			q.listenForLaunchpad()
		}()
		go func() {
			defer q.wg.Done()
			q.startMinuteTimer()
		}()

		// Start analytics logging if in dev or testing environment
		env := os.Getenv("ENV")
		if env == "dev" || env == "testing" {
			q.wg.Add(1)
			go func() {
				defer q.wg.Done()
				q.startAnalyticsLogger()
			}()
		}
	})
}

// Stop stops the queue gracefully. Tasks still waiting in the priority queue
// are abandoned; in-flight tasks finish first. Idempotent.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		// Stop worker pool first
		q.workersPool.Stop()

		close(q.quit)
		q.wg.Wait()

		if q.eventChan != nil {
			close(q.eventChan)
		}

		q.logStats(true)
		q.logger.Close()
	})
}

// listenForLaunchpad waits for wake signals and drains the priority queue
func (q *Queue) listenForLaunchpad() {
	for {
		select {
		case <-q.quit:
			return
		case <-q.launchpad:
			q.drainQueue()
		}
	}
}

// drainQueue pops and dispatches tasks until the priority queue is empty.
// Wake signals are dropped when the launchpad is full, so each wake drains
// fully rather than assuming one signal per task.
func (q *Queue) drainQueue() {
	for {
		select {
		case <-q.quit:
			return
		default:
		}

		if q.priorityQueue.IsEmpty() {
			return
		}

		if !q.waitWhileOffline() {
			return // Shutdown while paused
		}

		task, _ := q.priorityQueue.Pop()

		if !q.waitForBudget(task) {
			return // Shutdown while blocked on budget
		}

		q.emitEvent(EventTaskDispatched, task.ID, map[string]any{
			"worker_pool_busy": q.workersPool.GetBusyWorkers(),
			"worker_pool_size": q.workersPool.GetWorkerCount(),
		})

		// Register the completion callback before any worker can finish the
		// task
		q.trackCompletion(task)
		q.workersPool.Dispatch(task, q.quit)

		q.mu.Lock()
		q.launchedCount++
		q.mu.Unlock()
	}
}

// waitWhileOffline holds dispatch while the monitor reports the network down.
// The head of the queue stays unpopped during the outage so pushes that
// arrive in the meantime still dispatch in priority order on resume. Returns
// false when shutdown interrupts the wait.
func (q *Queue) waitWhileOffline() bool {
	if q.monitor == nil || q.monitor.Online() {
		return true
	}

	q.setPaused(true)
	q.emitEvent(EventQueuePaused, uuid.Nil, map[string]any{
		"queue_size": q.priorityQueue.Size(),
	})
	q.logger.Printf("Queue %s: Offline, holding %d queued task(s)",
		q.uniqueID, q.priorityQueue.Size())

	for !q.monitor.Online() {
		select {
		case <-q.quit:
			return false
		case <-q.monitorChanges:
			// Transition arrived, loop re-checks the status
		case <-time.After(time.Second):
			// Periodic re-check in case a transition was dropped
		}
	}

	q.setPaused(false)
	q.emitEvent(EventQueueResumed, uuid.Nil, map[string]any{
		"queue_size": q.priorityQueue.Size(),
	})
	q.logger.Printf("Queue %s: Back online, resuming dispatch", q.uniqueID)
	return true
}

// waitForBudget blocks until the task's host has request budget, then
// consumes one. Returns false when shutdown interrupts the wait.
func (q *Queue) waitForBudget(task *RequestTask) bool {
	if q.limiter == nil {
		return true
	}

	host := task.Host()
	blocked := false
	for q.limiter.BudgetAvailable(host) < 1 {
		// Emit blocking event only once per task
		if !blocked {
			blocked = true
			q.emitEvent(EventBudgetBlocked, task.ID, map[string]any{
				"host":             host,
				"time_until_reset": q.limiter.TimeUntilReset().String(),
			})
		}

		// Not enough budget, wait until the window resets (but check for
		// quit signal)
		randomStagger := time.Duration(rand.Intn(100)) * time.Millisecond
		waitTime := q.limiter.TimeUntilReset() + randomStagger

		select {
		case <-q.quit:
			return false
		case <-time.After(waitTime):
			// Re-check budget
		}
	}

	if err := q.limiter.RecordRequest(host); err != nil {
		q.logger.Printf("Queue %s: record request for %s: %v", q.uniqueID, host, err)
	}

	q.emitEvent(EventBudgetConsumed, task.ID, map[string]any{
		"host":      host,
		"remaining": q.limiter.BudgetAvailable(host),
	})
	return true
}

// trackCompletion updates counters and emits the terminal event once the
// task's result lands
func (q *Queue) trackCompletion(task *RequestTask) {
	task.AddResultCallback(func(result TaskResult) {
		if result.Error != nil {
			q.emitEvent(EventTaskFailed, task.ID, map[string]any{
				"error":    result.Error.Error(),
				"attempts": result.Attempts,
				"duration": result.Duration.String(),
			})

			q.mu.Lock()
			q.failedCount++
			q.mu.Unlock()
			return
		}

		q.emitEvent(EventTaskCompleted, task.ID, map[string]any{
			"status":   result.Response.StatusCode,
			"attempts": result.Attempts,
			"duration": result.Duration.String(),
		})

		q.mu.Lock()
		q.completedCount++
		q.mu.Unlock()
	})
}

// startAnalyticsLogger logs stats every 20 seconds while there is activity
func (q *Queue) startAnalyticsLogger() {
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-q.quit:
			return
		case <-ticker.C:
			q.logStats(false)
		}
	}
}
