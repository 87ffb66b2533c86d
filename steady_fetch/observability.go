package steady_fetch

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	// Task lifecycle events
	EventTaskQueued     EventType = "task_queued"
	EventTaskDispatched EventType = "task_dispatched"
	EventTaskRunning    EventType = "task_running"
	EventTaskRetrying   EventType = "task_retrying"
	EventTaskCompleted  EventType = "task_completed"
	EventTaskFailed     EventType = "task_failed"

	// Connectivity events
	EventQueuePaused  EventType = "queue_paused"
	EventQueueResumed EventType = "queue_resumed"

	// Budget events
	EventBudgetConsumed EventType = "budget_consumed"
	EventBudgetBlocked  EventType = "budget_blocked"
	EventBudgetReset    EventType = "budget_reset"
)

type Event struct {
	Type      EventType      `json:"type"`
	TaskID    string         `json:"task_id"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// GetEventChan exposes the event stream for external listeners
func (q *Queue) GetEventChan() <-chan *Event {
	return q.eventChan
}

// emitEvent publishes to the event channel without ever blocking
func (q *Queue) emitEvent(eventType EventType, taskID uuid.UUID, data map[string]any) {
	if q.eventChan == nil {
		return
	}

	event := &Event{
		Type:      eventType,
		TaskID:    taskID.String(),
		Timestamp: time.Now(),
		Data:      data,
	}

	select {
	case q.eventChan <- event:
	default:
		// A slow listener loses events, never stalls dispatch
	}
}

type QueueStats struct {
	QueueSize       int
	LaunchpadSize   int
	QueuedCount     int
	LaunchedCount   int
	CompletedCount  int
	FailedCount     int
	WorkersPoolSize int
	WorkersPoolBusy int
	Paused          bool
}

// GetPendingTasks returns the tasks still waiting in the priority queue, in
// internal heap order
func (q *Queue) GetPendingTasks() []*RequestTask {
	return q.priorityQueue.GetSnapshot()
}

// GetStats returns a snapshot of queue activity
func (q *Queue) GetStats() *QueueStats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return &QueueStats{
		QueueSize:       q.priorityQueue.Size(),
		LaunchpadSize:   len(q.launchpad),
		QueuedCount:     q.queuedCount,
		LaunchedCount:   q.launchedCount,
		CompletedCount:  q.completedCount,
		FailedCount:     q.failedCount,
		WorkersPoolSize: q.workersPool.GetWorkerCount(),
		WorkersPoolBusy: q.workersPool.GetBusyWorkers(),
		Paused:          q.paused,
	}
}

// setPaused flips the paused flag for stats readers
func (q *Queue) setPaused(paused bool) {
	q.mu.Lock()
	q.paused = paused
	q.mu.Unlock()
}

// logStats writes one activity line, or a closing summary on shutdown
func (q *Queue) logStats(shutdown bool) {
	stats := q.GetStats()

	if shutdown {
		q.logger.Printf("Queue %s: Shutting down. Launched: %d. Completed: %d. Failed: %d. Time taken: %s",
			q.uniqueID,
			stats.LaunchedCount,
			stats.CompletedCount,
			stats.FailedCount,
			time.Since(q.startTime),
		)
		return
	}

	// Only log if there's activity (busy workers, queued tasks, or launches)
	if stats.WorkersPoolBusy > 0 || stats.QueueSize > 0 || stats.LaunchedCount > 0 {
		q.logger.Printf("Queue %s: Workers(%d/%d) Queue(%d) Launched(%d) Completed(%d) Failed(%d) Paused(%t)",
			q.uniqueID,
			stats.WorkersPoolBusy,
			stats.WorkersPoolSize,
			stats.QueueSize,
			stats.LaunchedCount,
			stats.CompletedCount,
			stats.FailedCount,
			stats.Paused,
		)
	}
}
