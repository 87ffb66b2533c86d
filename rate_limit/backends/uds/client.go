package uds

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/FrenchMajesty/steady-fetch/rate_limit"
)

// Client is the in-process side of the shared limiter. Budget questions go to
// the daemon over the Unix Domain Socket, so parallel processes on one
// machine draw down one budget per host. When the daemon cannot be reached
// the client answers from the default budget instead of blocking dispatch.
type Client struct {
	mu           sync.Mutex
	conn         net.Conn
	reader       *bufio.Reader
	defaultLimit rate_limit.RateLimit
}

var _ rate_limit.Backend = (*Client)(nil)

// NewClient connects to the rate limiter daemon, launching one if none is
// running yet
func NewClient() *Client {
	client := &Client{
		defaultLimit: rate_limit.DefaultLimit,
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if err := client.connect(); err != nil {
		fmt.Fprintf(os.Stderr, "rate limiter unreachable, using local default budgets: %v\n", err)
	}

	return client
}

// connect dials the daemon socket, launching the daemon first if nobody is
// listening yet. Caller must hold c.mu.
func (c *Client) connect() error {
	if conn, err := net.Dial("unix", socketPath); err == nil {
		c.adopt(conn)
		return nil
	}

	if err := c.spawnDaemon(); err != nil {
		return fmt.Errorf("launch rate limiter: %w", err)
	}

	// Give the fresh daemon a moment to bind the socket
	time.Sleep(100 * time.Millisecond)

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("dial rate limiter after launch: %w", err)
	}
	c.adopt(conn)
	return nil
}

func (c *Client) adopt(conn net.Conn) {
	c.conn = conn
	c.reader = bufio.NewReader(conn)
}

// spawnDaemon re-executes this binary with the daemon argv, detached so it
// outlives us and serves later processes too
func (c *Client) spawnDaemon() error {
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve own binary: %w", err)
	}

	cmd := exec.Command(execPath, "rate-limiter")
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = detachAttr()

	if err := cmd.Start(); err != nil {
		return err
	}

	// Reap the child if it exits while we are still alive
	go cmd.Wait()

	return nil
}

// roundTrip sends one protocol line and returns the reply with the trailing
// newline stripped. A dead connection gets one reconnect attempt.
func (c *Client) roundTrip(line string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.connect(); err != nil {
			return "", err
		}
	}

	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		c.conn.Close()
		c.conn = nil
		c.reader = nil

		if err := c.connect(); err != nil {
			return "", fmt.Errorf("reconnect to rate limiter: %w", err)
		}
		if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
			return "", fmt.Errorf("resend after reconnect: %w", err)
		}
	}

	reply, err := c.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read rate limiter reply: %w", err)
	}

	return strings.TrimSpace(reply), nil
}

// BudgetAvailable returns the number of requests still allowed for the host.
// Daemon failures degrade to the full default budget.
func (c *Client) BudgetAvailable(host string) int {
	reply, err := c.roundTrip("AVAIL " + host)
	if err != nil {
		return c.defaultLimit.RPM
	}

	remaining, err := strconv.Atoi(reply)
	if err != nil {
		return c.defaultLimit.RPM
	}

	return remaining
}

// RecordRequest records one dispatched request against the host
func (c *Client) RecordRequest(host string) error {
	_, err := c.roundTrip("TAKE " + host + " 1")
	return err
}

// TimeUntilReset reports how long the current minute window has left. Daemon
// failures degrade to local clock math, which agrees with the daemon because
// both truncate to the same minute boundary.
func (c *Client) TimeUntilReset() time.Duration {
	reply, err := c.roundTrip("TTR")
	if err != nil {
		return localTimeUntilReset()
	}

	ms, err := strconv.ParseInt(reply, 10, 64)
	if err != nil {
		return localTimeUntilReset()
	}

	return time.Duration(ms) * time.Millisecond
}

// SetBudgetForTests pins a custom budget for the given host
func (c *Client) SetBudgetForTests(host string, rpm int) error {
	_, err := c.roundTrip(fmt.Sprintf("LIMIT %s %d", host, rpm))
	return err
}

// Close closes the connection to the daemon. The daemon itself keeps running
// until its idle watcher fires.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func localTimeUntilReset() time.Duration {
	now := time.Now()
	return now.Truncate(time.Minute).Add(time.Minute).Sub(now)
}
