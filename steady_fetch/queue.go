package steady_fetch

import (
	"errors"
	"sync"
	"time"

	"github.com/FrenchMajesty/steady-fetch/fetch"
	"github.com/FrenchMajesty/steady-fetch/offline"
	"github.com/FrenchMajesty/steady-fetch/rate_limit"
	"github.com/FrenchMajesty/steady-fetch/utils/logger"
	"github.com/FrenchMajesty/steady-fetch/utils/priority_queue"
	"github.com/google/uuid"
)

// Options configures a Queue
type Options struct {
	// Doer executes the HTTP requests; defaults to fetch.DefaultClient()
	Doer fetch.Doer

	// Monitor gates dispatch on connectivity when set
	Monitor *offline.Monitor

	// Limiter meters dispatches against per-host budgets when set
	Limiter rate_limit.Backend

	// Workers is the worker pool size, default 8
	Workers int

	// EventBufferSize is the event channel capacity, default 1000
	EventBufferSize int

	Logger  logger.Logger
	Verbose bool
}

// Queue dispatches queued requests by priority, holding them while the
// network is down and while the per-host budget is exhausted
type Queue struct {
	priorityQueue *priority_queue.PriorityQueue[*RequestTask]
	workersPool   *workerPool
	monitor       *offline.Monitor
	limiter       rate_limit.Backend

	// Dispatch loop signalling
	quit           chan struct{}
	launchpad      chan struct{}
	eventChan      chan *Event
	monitorChanges <-chan offline.Change

	uniqueID   string
	logger     logger.Logger
	verboseLog bool
	startTime  time.Time
	wg         sync.WaitGroup
	startOnce  sync.Once
	stopOnce   sync.Once

	// Counters guarded by mu
	mu             sync.RWMutex
	queuedCount    int
	launchedCount  int
	completedCount int
	failedCount    int
	paused         bool
}

// NewQueue creates a queue and starts its dispatch loop
func NewQueue(opts Options) *Queue {
	if opts.Doer == nil {
		opts.Doer = fetch.DefaultClient()
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.EventBufferSize <= 0 {
		opts.EventBufferSize = 1000
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoopLogger()
	}

	q := &Queue{
		uniqueID:      uuid.New().String()[:6],
		priorityQueue: priority_queue.NewMaxPriorityQueue[*RequestTask](),
		monitor:       opts.Monitor,
		limiter:       opts.Limiter,
		quit:          make(chan struct{}),
		launchpad:     make(chan struct{}, 100),
		eventChan:     make(chan *Event, opts.EventBufferSize),
		logger:        opts.Logger,
		verboseLog:    opts.Verbose,
		startTime:     time.Now(),
	}
	q.workersPool = newWorkerPool(opts.Workers, opts.Doer, q)

	// One persistent subscription; the pause loop re-checks status on every
	// change rather than subscribing per pause
	if q.monitor != nil {
		q.monitorChanges = q.monitor.Subscribe()
	}

	q.Start()

	q.logger.Printf("Queue %s: Started with %d workers", q.uniqueID, opts.Workers)
	return q
}

// Push enqueues a task for dispatch by priority
func (q *Queue) Push(task *RequestTask) *Queue {
	q.priorityQueue.Push(&priority_queue.QueueItem[*RequestTask]{
		Item:     task,
		Priority: task.GetPriority(),
	})

	q.mu.Lock()
	q.queuedCount++
	q.mu.Unlock()

	q.emitEvent(EventTaskQueued, task.ID, map[string]any{
		"priority":   task.GetPriority(),
		"queue_size": q.priorityQueue.Size(),
	})

	// Wake the dispatcher; a dropped signal is fine since every wake drains
	// the whole queue
	select {
	case q.launchpad <- struct{}{}:
	default:
	}

	return q
}

// WaitFor blocks until the task's result arrives
func (q *Queue) WaitFor(task *RequestTask) TaskResult {
	return task.ListenForResult()
}

// reportOutcome feeds a task outcome to the offline monitor. An HTTP error
// still proves connectivity; only transport failures count against it.
func (q *Queue) reportOutcome(err error) {
	if q.monitor == nil {
		return
	}
	if err == nil {
		q.monitor.ReportSuccess()
		return
	}

	var httpErr *fetch.HTTPError
	if errors.As(err, &httpErr) {
		q.monitor.ReportSuccess()
		return
	}
	q.monitor.ReportFailure(err)
}
