package offline

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/FrenchMajesty/steady-fetch/fetch"
	"github.com/FrenchMajesty/steady-fetch/utils/logger"
)

// Status is the current connectivity verdict
type Status int

const (
	// StatusUnknown is the initial state before any evidence has arrived
	StatusUnknown Status = iota
	StatusOnline
	StatusOffline
)

func (s Status) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Change records a connectivity transition
type Change struct {
	From Status
	To   Status
	At   time.Time
}

const (
	// DefaultProbeURL answers with an empty 204, which keeps probes cheap
	DefaultProbeURL = "https://clients3.google.com/generate_204"

	DefaultInterval         = 30 * time.Second
	DefaultFailureThreshold = 2
)

// Options configures a Monitor. Zero values fall back to the defaults above.
type Options struct {
	// ProbeURL is fetched on every probe cycle. Any HTTP response counts as
	// connectivity, even an error status; only transport failures count
	// against the threshold.
	ProbeURL string

	Interval time.Duration

	// FailureThreshold is how many consecutive failures flip the status to
	// offline. A single success flips it back.
	FailureThreshold int

	HTTP    fetch.Doer
	Logger  logger.Logger
	Verbose bool
}

// Monitor tracks connectivity by probing a URL on an interval and by passive
// reports from live request traffic. Safe for concurrent use.
type Monitor struct {
	probeURL         string
	interval         time.Duration
	failureThreshold int
	http             fetch.Doer
	logger           logger.Logger
	verboseLog       bool

	mu           sync.RWMutex
	status       Status
	failureCount int
	subscribers  []chan Change
	callbacks    []func(Change)

	quit      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewMonitor creates a monitor. Call Start to begin probing.
func NewMonitor(opts Options) *Monitor {
	if opts.ProbeURL == "" {
		opts.ProbeURL = DefaultProbeURL
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = DefaultFailureThreshold
	}
	if opts.HTTP == nil {
		opts.HTTP = fetch.DefaultClient()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoopLogger()
	}

	return &Monitor{
		probeURL:         opts.ProbeURL,
		interval:         opts.Interval,
		failureThreshold: opts.FailureThreshold,
		http:             opts.HTTP,
		logger:           opts.Logger,
		verboseLog:       opts.Verbose,
		status:           StatusUnknown,
		quit:             make(chan struct{}),
	}
}

// Start launches the probe loop. Calling it again is a no-op.
func (m *Monitor) Start() {
	m.startOnce.Do(func() {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.probeLoop()
		}()
	})
}

// Stop shuts the probe loop down and waits for it to exit. Idempotent.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.quit)
		m.wg.Wait()
	})
}

// Status returns the current connectivity verdict
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Online reports whether traffic can be expected to go through. Unknown counts
// as online so a fresh monitor never blocks callers.
func (m *Monitor) Online() bool {
	return m.Status() != StatusOffline
}

// Subscribe returns a channel that receives connectivity transitions. Slow
// receivers miss changes rather than stall the monitor.
func (m *Monitor) Subscribe() <-chan Change {
	ch := make(chan Change, 16)
	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()
	return ch
}

// OnChange registers a callback invoked on every transition. Callbacks run on
// the reporting goroutine and must not block.
func (m *Monitor) OnChange(fn func(Change)) {
	m.mu.Lock()
	m.callbacks = append(m.callbacks, fn)
	m.mu.Unlock()
}

// ReportSuccess feeds a successful live request into the monitor
func (m *Monitor) ReportSuccess() {
	m.recordOutcome(true)
}

// ReportFailure feeds a failed live request into the monitor. Context
// cancellations are ignored since they say nothing about connectivity.
func (m *Monitor) ReportFailure(err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	m.recordOutcome(false)
}

// ForceProbe runs one probe immediately and returns the resulting status
func (m *Monitor) ForceProbe(ctx context.Context) Status {
	m.probe(ctx)
	return m.Status()
}

// probeLoop probes once right away, then on every tick until shutdown
func (m *Monitor) probeLoop() {
	m.probe(context.Background())

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.quit:
			return // Shutdown signal
		case <-ticker.C:
			m.probe(context.Background())
		}
	}
}

// probe fetches the probe URL once and records the outcome
func (m *Monitor) probe(ctx context.Context) {
	timeout := m.interval
	if timeout > 10*time.Second {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.probeURL, nil)
	if err != nil {
		m.recordOutcome(false)
		return
	}

	resp, err := m.http.Do(req)
	if err != nil {
		if m.verboseLog {
			m.logger.Printf("OfflineMonitor: probe failed: %v", err)
		}
		m.recordOutcome(false)
		return
	}
	resp.Body.Close()

	// Any response proves the network path works, even a server error
	m.recordOutcome(true)
}

// recordOutcome applies one success or failure to the state machine and
// notifies subscribers when the status flips
func (m *Monitor) recordOutcome(success bool) {
	m.mu.Lock()
	previous := m.status

	if success {
		m.failureCount = 0
		m.status = StatusOnline
	} else {
		m.failureCount++
		if m.failureCount >= m.failureThreshold {
			m.status = StatusOffline
		}
	}
	current := m.status
	m.mu.Unlock()

	if current == previous {
		return
	}
	m.notify(Change{From: previous, To: current, At: time.Now()})
}

// notify fans a transition out to subscribers and callbacks, outside the lock
func (m *Monitor) notify(change Change) {
	m.mu.RLock()
	subscribers := make([]chan Change, len(m.subscribers))
	copy(subscribers, m.subscribers)
	callbacks := make([]func(Change), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.RUnlock()

	m.logger.Printf("OfflineMonitor: connectivity %s -> %s", change.From, change.To)

	for _, ch := range subscribers {
		// Non-blocking send so a slow subscriber cannot stall reporting
		select {
		case ch <- change:
		default:
		}
	}
	for _, fn := range callbacks {
		fn(change)
	}
}
