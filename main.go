package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/FrenchMajesty/steady-fetch/config"
	"github.com/FrenchMajesty/steady-fetch/fetch"
	"github.com/FrenchMajesty/steady-fetch/offline"
	"github.com/FrenchMajesty/steady-fetch/rate_limit"
	"github.com/FrenchMajesty/steady-fetch/rate_limit/backends/memory"
	"github.com/FrenchMajesty/steady-fetch/rate_limit/backends/uds"
	"github.com/FrenchMajesty/steady-fetch/steady_fetch"
	"github.com/FrenchMajesty/steady-fetch/utils/logger"
	"github.com/FrenchMajesty/steady-fetch/utils/parallel"
	"github.com/FrenchMajesty/steady-fetch/utils/retry"
)

// demoAPI simulates a flaky upstream. The first hit on each article path fails
// with 503 so the retry schedule has something to do.
type demoAPI struct {
	mu   sync.Mutex
	hits map[string]int
}

func (d *demoAPI) articles(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	d.hits[r.URL.Path]++
	hits := d.hits[r.URL.Path]
	d.mu.Unlock()

	if hits == 1 {
		http.Error(w, "warming up", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"title":        "Article " + strings.TrimPrefix(r.URL.Path, "/articles/"),
		"served_after": hits,
	})
}

func (d *demoAPI) account(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"section": strings.TrimPrefix(r.URL.Path, "/"),
		"plan":    "pro",
	})
}

// startDemoServer serves the fake API on a loopback port and returns its base URL
func startDemoServer() (string, func()) {
	api := &demoAPI{hits: make(map[string]int)}

	mux := http.NewServeMux()
	mux.HandleFunc("/articles/", api.articles)
	mux.HandleFunc("/profile", api.account)
	mux.HandleFunc("/settings", api.account)
	mux.HandleFunc("/feed", api.account)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Fatalf("Failed to start demo server: %v", err)
	}

	server := &http.Server{Handler: mux}
	go server.Serve(listener)

	return "http://" + listener.Addr().String(), func() { server.Close() }
}

// newLimiter picks the rate limit backend from configuration. The uds backend
// keeps its budgets in the shared daemon, so the configured RPM only applies
// to the in-memory one.
func newLimiter(cfg *config.Config) rate_limit.Backend {
	if cfg.RateLimit.Backend == "uds" {
		return uds.NewClient()
	}
	return memory.NewBackendWithLimit(rate_limit.RateLimit{RPM: cfg.RateLimit.RPM})
}

func main() {
	// The uds backend re-execs this binary to run the budget daemon
	if len(os.Args) > 1 && os.Args[1] == "rate-limiter" {
		uds.RunServer()
		return
	}

	// Dev mode keeps the periodic stats logger on
	os.Setenv("ENV", "dev")

	configPath := ""
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("🚀 Steady Fetch Demo")
	fmt.Println("====================")

	baseURL, closeServer := startDemoServer()
	defer closeServer()
	fmt.Printf("📡 Demo API running on %s\n", baseURL)

	// Probe the demo server itself so the run works without internet access
	monitor := offline.NewMonitor(offline.Options{
		ProbeURL:         baseURL + "/health",
		Interval:         cfg.Offline.Interval,
		FailureThreshold: cfg.Offline.FailureThreshold,
		Verbose:          cfg.Verbose,
	})
	monitor.Start()
	defer monitor.Stop()

	limiter := newLimiter(cfg)
	defer limiter.Close()

	q := steady_fetch.NewQueue(steady_fetch.Options{
		Monitor:         monitor,
		Limiter:         limiter,
		Workers:         cfg.Queue.Workers,
		EventBufferSize: cfg.Queue.EventBufferSize,
		Logger:          logger.NewPrefixLogger("queue", logger.NewStdoutLogger()),
		Verbose:         cfg.Verbose,
	})
	defer q.Stop()

	// Stream queue events as they happen
	go func() {
		for event := range q.GetEventChan() {
			fmt.Printf("  [event] %-16s task=%s %v\n", event.Type, event.TaskID[:6], event.Data)
		}
	}()

	// Shut down cleanly on Ctrl+C
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n👋 Interrupted, shutting down...")
		q.Stop()
		closeServer()
		os.Exit(0)
	}()

	// Queue a batch of article fetches at mixed priorities, plus one rush
	// request that should jump the line
	fmt.Println("\n📊 Queueing workload...")
	tasks := make([]*steady_fetch.RequestTask, 0, 6)
	for i := 1; i <= 5; i++ {
		task := steady_fetch.NewRequestTask(fetch.Request{
			URL: fmt.Sprintf("%s/articles/%d", baseURL, i),
		}).SetPriority(i).SetRetryConfig(cfg.Retry)
		tasks = append(tasks, task)
		q.Push(task)
	}

	rush := steady_fetch.NewRequestTask(fetch.Request{
		URL:    baseURL + "/articles/rush",
		Method: http.MethodPost,
		Body:   map[string]any{"reason": "editor request"},
	}).SetPriority(10).SetRetryConfig(cfg.Retry)
	tasks = append(tasks, rush)
	q.Push(rush)

	fmt.Printf("   %d task(s) pending right after push\n", len(q.GetPendingTasks()))

	for _, task := range tasks {
		result := q.WaitFor(task)
		if result.Error != nil {
			fmt.Printf("❌ %s failed after %d attempt(s): %v\n",
				task.GetRequest().URL, result.Attempts, result.Error)
			continue
		}
		fmt.Printf("✅ %-40s attempts=%d title=%s\n",
			task.GetRequest().URL, result.Attempts, result.Response.Get("title").String())
	}

	// Fan out a keyed batch outside the queue, each request with its own
	// retry session
	fmt.Println("\n📦 Fetching account sections in parallel...")
	ctx := context.Background()
	results := fetch.All(ctx, nil, map[string]fetch.Request{
		"profile":  {URL: baseURL + "/profile"},
		"settings": {URL: baseURL + "/settings"},
		"feed":     {URL: baseURL + "/feed"},
	}, retry.Options{Config: cfg.Retry})

	for _, key := range []string{"profile", "settings", "feed"} {
		resp, err := parallel.GetAs[*fetch.Response](results, key)
		if err != nil {
			fmt.Printf("❌ %s: %v\n", key, err)
			continue
		}
		fmt.Printf("✅ %-8s plan=%s\n", key, resp.Get("plan").String())
	}

	// Give the event printer a beat to drain before the summary
	time.Sleep(100 * time.Millisecond)

	stats := q.GetStats()
	fmt.Println("\n📈 Final stats")
	fmt.Printf("   queued=%d launched=%d completed=%d failed=%d\n",
		stats.QueuedCount, stats.LaunchedCount, stats.CompletedCount, stats.FailedCount)

	fmt.Println("\n👋 Done")
}
