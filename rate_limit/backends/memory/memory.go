package memory

import (
	"sync"
	"time"

	"github.com/FrenchMajesty/steady-fetch/rate_limit"
)

// Memory keeps per-host request budgets inside one process. Good for tests
// and single-binary deployments; use the uds backend when several processes
// must draw from the same budgets.
type Memory struct {
	used         map[string]int
	windowStart  time.Time
	budgets      map[string]rate_limit.RateLimit
	defaultLimit rate_limit.RateLimit
	mu           sync.RWMutex
}

var _ rate_limit.Backend = (*Memory)(nil)

// NewBackend creates a new in-memory rate limit backend with the default budget
func NewBackend() *Memory {
	return NewBackendWithLimit(rate_limit.DefaultLimit)
}

// NewBackendWithLimit creates a new in-memory backend applying the given limit
// to hosts without an explicit budget
func NewBackendWithLimit(limit rate_limit.RateLimit) *Memory {
	return &Memory{
		used:         make(map[string]int),
		windowStart:  time.Now().Truncate(time.Minute),
		budgets:      make(map[string]rate_limit.RateLimit),
		defaultLimit: limit,
	}
}

// BudgetAvailable returns the number of requests still allowed for the given host
func (m *Memory) BudgetAvailable(host string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollWindow()

	available := m.limitFor(host).RPM - m.used[host]
	if available < 0 {
		available = 0
	}
	return available
}

// RecordRequest records one dispatched request against the given host
func (m *Memory) RecordRequest(host string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollWindow()
	m.used[host]++

	return nil
}

// TimeUntilReset reports how long the current minute window has left
func (m *Memory) TimeUntilReset() time.Duration {
	now := time.Now()
	return now.Truncate(time.Minute).Add(time.Minute).Sub(now)
}

// SetBudgetForTests pins a custom budget for the given host
func (m *Memory) SetBudgetForTests(host string, rpm int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.budgets[host] = rate_limit.RateLimit{RPM: rpm}

	return nil
}

// Close satisfies Backend; there is nothing to release
func (m *Memory) Close() error {
	return nil
}

// limitFor returns the budget configured for a host, falling back to the
// default. Caller must hold the lock.
func (m *Memory) limitFor(host string) rate_limit.RateLimit {
	if limit, ok := m.budgets[host]; ok {
		return limit
	}
	return m.defaultLimit
}

// rollWindow clears the counters once the minute boundary passes. Caller must
// hold the lock.
func (m *Memory) rollWindow() {
	windowStart := time.Now().Truncate(time.Minute)
	if !m.windowStart.Equal(windowStart) {
		m.windowStart = windowStart
		m.used = make(map[string]int)
	}
}
