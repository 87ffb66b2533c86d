package uds

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/FrenchMajesty/steady-fetch/rate_limit"
)

// socketPath is shared by every process on the machine. The first process
// that needs the limiter launches the daemon; everyone else just connects.
const socketPath = "/tmp/steady-fetch-rate-limiter.sock"

const (
	idleShutdownAfter = 5 * time.Second
	idlePollEvery     = time.Second
)

// Manager is the daemon side of the shared limiter. It owns the per-host
// request counters for the current minute window and answers a line protocol
// over a Unix Domain Socket, one space-delimited command per line:
//
//	AVAIL <host>        -> remaining requests this minute
//	TAKE <host> <count> -> OK
//	LIMIT <host> <rpm>  -> OK (test override)
//	RESET               -> OK
//	TTR                 -> milliseconds until the window resets
//	PING                -> PONG
//
// Malformed input gets an "ERR ..." reply. Host keys never contain spaces.
type Manager struct {
	used         map[string]int
	windowStart  time.Time
	budgets      map[string]rate_limit.RateLimit
	defaultLimit rate_limit.RateLimit
	mu           sync.RWMutex

	listener net.Listener
	connsMu  sync.Mutex
	conns    int
	quit     chan struct{}
}

// NewManager creates a manager with no per-host overrides
func NewManager() *Manager {
	return &Manager{
		used:         make(map[string]int),
		windowStart:  time.Now().Truncate(time.Minute),
		budgets:      make(map[string]rate_limit.RateLimit),
		defaultLimit: rate_limit.DefaultLimit,
		quit:         make(chan struct{}),
	}
}

// Start binds the socket and launches the accept, reset and idle loops
func (m *Manager) Start() error {
	// A crashed daemon leaves its socket file behind
	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("bind %s: %w", socketPath, err)
	}
	m.listener = listener

	// Any user's process may share the budgets
	if err := os.Chmod(socketPath, 0666); err != nil {
		return fmt.Errorf("chmod %s: %w", socketPath, err)
	}

	fmt.Printf("rate limiter listening on %s\n", socketPath)

	go m.runResetTimer()
	go m.acceptLoop()
	go m.watchForIdle()

	return nil
}

// Stop closes the listener and removes the socket file
func (m *Manager) Stop() {
	close(m.quit)
	if m.listener != nil {
		m.listener.Close()
	}
	os.Remove(socketPath)
}

func (m *Manager) acceptLoop() {
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			select {
			case <-m.quit:
				return
			default:
				fmt.Printf("accept: %v\n", err)
				continue
			}
		}

		m.trackConn(1)
		go m.serveConn(conn)
	}
}

// serveConn answers one client until it hangs up
func (m *Manager) serveConn(conn net.Conn) {
	defer func() {
		conn.Close()
		m.trackConn(-1)
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		reply := m.dispatch(scanner.Text())
		conn.Write([]byte(reply + "\n"))
	}
}

func (m *Manager) trackConn(delta int) {
	m.connsMu.Lock()
	m.conns += delta
	m.connsMu.Unlock()
}

func (m *Manager) clientCount() int {
	m.connsMu.Lock()
	defer m.connsMu.Unlock()
	return m.conns
}

// dispatch parses one protocol line and produces the reply line
func (m *Manager) dispatch(line string) string {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return "ERR empty command"
	}
	verb, args := parts[0], parts[1:]

	switch verb {
	case "AVAIL":
		if len(args) != 1 {
			return "ERR AVAIL wants: AVAIL <host>"
		}
		return strconv.Itoa(m.available(args[0]))

	case "TAKE":
		if len(args) != 2 {
			return "ERR TAKE wants: TAKE <host> <count>"
		}
		count, err := strconv.Atoi(args[1])
		if err != nil {
			return "ERR not a number: " + args[1]
		}
		m.take(args[0], count)
		return "OK"

	case "LIMIT":
		if len(args) != 2 {
			return "ERR LIMIT wants: LIMIT <host> <rpm>"
		}
		rpm, err := strconv.Atoi(args[1])
		if err != nil {
			return "ERR not a number: " + args[1]
		}
		m.setLimit(args[0], rpm)
		return "OK"

	case "RESET":
		m.resetWindow()
		return "OK"

	case "TTR":
		return strconv.FormatInt(m.timeUntilReset().Milliseconds(), 10)

	case "PING":
		return "PONG"

	default:
		return "ERR unknown command " + verb
	}
}

// available returns the number of requests still allowed for a host
func (m *Manager) available(host string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollWindow()

	remaining := m.limitFor(host).RPM - m.used[host]
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// take records dispatched requests against a host
func (m *Manager) take(host string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollWindow()
	m.used[host] += count
}

// setLimit pins a custom budget for a host
func (m *Manager) setLimit(host string, rpm int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.budgets[host] = rate_limit.RateLimit{RPM: rpm}
}

// resetWindow discards all counters and restarts the minute window
func (m *Manager) resetWindow() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.windowStart = time.Now().Truncate(time.Minute)
	m.used = make(map[string]int)
}

// timeUntilReset reports how long the current minute window has left
func (m *Manager) timeUntilReset() time.Duration {
	now := time.Now()
	return now.Truncate(time.Minute).Add(time.Minute).Sub(now)
}

// limitFor returns the budget configured for a host, falling back to the
// default. Caller must hold the lock.
func (m *Manager) limitFor(host string) rate_limit.RateLimit {
	if limit, ok := m.budgets[host]; ok {
		return limit
	}
	return m.defaultLimit
}

// rollWindow clears the counters once the minute boundary passes. Caller must
// hold the lock.
func (m *Manager) rollWindow() {
	windowStart := time.Now().Truncate(time.Minute)
	if !m.windowStart.Equal(windowStart) {
		m.windowStart = windowStart
		m.used = make(map[string]int)
	}
}

// runResetTimer clears the counters at every minute boundary so budgets
// refill even while no commands arrive
func (m *Manager) runResetTimer() {
	timer := time.NewTimer(m.timeUntilReset())
	defer timer.Stop()

	for {
		select {
		case <-m.quit:
			return
		case <-timer.C:
			m.resetWindow()
			timer.Reset(m.timeUntilReset())
		}
	}
}

// watchForIdle exits the process once no client has been connected for
// idleShutdownAfter, so abandoned daemons do not linger
func (m *Manager) watchForIdle() {
	ticker := time.NewTicker(idlePollEvery)
	defer ticker.Stop()

	var idleSince time.Time
	for {
		select {
		case <-m.quit:
			return
		case now := <-ticker.C:
			if m.clientCount() > 0 {
				idleSince = time.Time{}
				continue
			}
			if idleSince.IsZero() {
				idleSince = now
				continue
			}
			if now.Sub(idleSince) >= idleShutdownAfter {
				fmt.Printf("rate limiter idle for %s, exiting\n", idleShutdownAfter)
				m.Stop()
				os.Exit(0)
			}
		}
	}
}

// RunServer runs the manager as a standalone daemon. It blocks forever; the
// idle watcher is the only way out.
func RunServer() {
	manager := NewManager()
	if err := manager.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "rate limiter failed to start: %v\n", err)
		os.Exit(1)
	}

	select {}
}
