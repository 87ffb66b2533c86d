package rate_limit

import "time"

// Backend defines the interface for rate limit persistence backends keyed by
// origin host. Implementations can use different mechanisms (in-memory, Redis,
// file-based, etc.) to track and enforce request budgets across single or
// multiple processes.
type Backend interface {
	// BudgetAvailable returns the number of requests still allowed for the
	// given host in the current time window (typically per minute).
	BudgetAvailable(host string) int

	// RecordRequest records one dispatched request against the given host.
	RecordRequest(host string) error

	// TimeUntilReset reports how long until budgets refill, typically at
	// the next minute boundary.
	TimeUntilReset() time.Duration

	// SetBudgetForTests allows overriding a host's budget for testing purposes.
	SetBudgetForTests(host string, rpm int) error

	// Close releases whatever the backend holds open (connections, files)
	Close() error
}
