package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/FrenchMajesty/steady-fetch/rate_limit"
	"github.com/FrenchMajesty/steady-fetch/utils/retry"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config gathers the tunables for every component. YAML fields are optional;
// anything absent keeps its default, and environment variables win last.
type Config struct {
	Retry     retry.Config    `yaml:"retry"`
	Client    ClientConfig    `yaml:"client"`
	Offline   OfflineConfig   `yaml:"offline"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Queue     QueueConfig     `yaml:"queue"`
	Verbose   bool            `yaml:"verbose"`
}

// ClientConfig configures the API client
type ClientConfig struct {
	BaseURL string `yaml:"base_url"`

	// TokenEnv names the environment variable holding the bearer token
	TokenEnv string `yaml:"token_env"`

	Timeout time.Duration `yaml:"timeout"`
}

// OfflineConfig configures the connectivity monitor
type OfflineConfig struct {
	ProbeURL         string        `yaml:"probe_url"`
	Interval         time.Duration `yaml:"interval"`
	FailureThreshold int           `yaml:"failure_threshold"`
}

// UnmarshalYAML decodes the timeout from a duration string ("30s")
func (c *ClientConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		BaseURL  string    `yaml:"base_url"`
		TokenEnv string    `yaml:"token_env"`
		Timeout  yaml.Node `yaml:"timeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.BaseURL != "" {
		c.BaseURL = raw.BaseURL
	}
	if raw.TokenEnv != "" {
		c.TokenEnv = raw.TokenEnv
	}
	return decodeDuration(&c.Timeout, raw.Timeout, "client.timeout")
}

// UnmarshalYAML decodes the probe interval from a duration string ("30s")
func (c *OfflineConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		ProbeURL         string    `yaml:"probe_url"`
		Interval         yaml.Node `yaml:"interval"`
		FailureThreshold *int      `yaml:"failure_threshold"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.ProbeURL != "" {
		c.ProbeURL = raw.ProbeURL
	}
	if raw.FailureThreshold != nil {
		c.FailureThreshold = *raw.FailureThreshold
	}
	return decodeDuration(&c.Interval, raw.Interval, "offline.interval")
}

// RateLimitConfig configures the default request budget per host.
// Backend selects where budgets live: "memory" keeps them in-process,
// "uds" shares them across processes through the rate limiter daemon.
type RateLimitConfig struct {
	RPM     int    `yaml:"rpm"`
	Backend string `yaml:"backend"`
}

// QueueConfig configures the request queue
type QueueConfig struct {
	Workers         int `yaml:"workers"`
	EventBufferSize int `yaml:"event_buffer_size"`
}

// Default returns the configuration used when nothing is specified
func Default() *Config {
	return &Config{
		Retry: retry.DefaultConfig(),
		Client: ClientConfig{
			Timeout: 30 * time.Second,
		},
		Offline: OfflineConfig{
			Interval:         30 * time.Second,
			FailureThreshold: 2,
		},
		RateLimit: RateLimitConfig{
			RPM:     rate_limit.DefaultLimit.RPM,
			Backend: "memory",
		},
		Queue: QueueConfig{
			Workers:         8,
			EventBufferSize: 1000,
		},
	}
}

// Load reads configuration in three layers: defaults, then the YAML file at
// path (skipped when path is empty), then environment variables. A .env file
// is loaded first outside production.
func Load(path string) (*Config, error) {
	env := os.Getenv("ENV")
	if strings.ToLower(env) != "production" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found; continuing with environment variables")
		}
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds the configuration from the environment alone
func FromEnv() (*Config, error) {
	return Load("")
}

// applyEnvOverrides lets STEADY_* environment variables win over file values
func (c *Config) applyEnvOverrides() {
	c.Retry.MaxRetries = getEnvAsInt("STEADY_MAX_RETRIES", c.Retry.MaxRetries)
	c.Retry.BaseDelay = getEnvAsDuration("STEADY_BASE_DELAY", c.Retry.BaseDelay)
	c.Retry.MaxDelay = getEnvAsDuration("STEADY_MAX_DELAY", c.Retry.MaxDelay)
	c.Retry.BackoffMultiple = getEnvAsFloat("STEADY_BACKOFF_MULTIPLE", c.Retry.BackoffMultiple)

	c.Client.BaseURL = getEnv("STEADY_BASE_URL", c.Client.BaseURL)
	c.Client.TokenEnv = getEnv("STEADY_TOKEN_ENV", c.Client.TokenEnv)
	c.Client.Timeout = getEnvAsDuration("STEADY_CLIENT_TIMEOUT", c.Client.Timeout)

	c.Offline.ProbeURL = getEnv("STEADY_PROBE_URL", c.Offline.ProbeURL)
	c.Offline.Interval = getEnvAsDuration("STEADY_PROBE_INTERVAL", c.Offline.Interval)
	c.Offline.FailureThreshold = getEnvAsInt("STEADY_FAILURE_THRESHOLD", c.Offline.FailureThreshold)

	c.RateLimit.RPM = getEnvAsInt("STEADY_RPM", c.RateLimit.RPM)
	c.RateLimit.Backend = getEnv("STEADY_RATE_LIMIT_BACKEND", c.RateLimit.Backend)

	c.Queue.Workers = getEnvAsInt("STEADY_WORKERS", c.Queue.Workers)
	c.Queue.EventBufferSize = getEnvAsInt("STEADY_EVENT_BUFFER", c.Queue.EventBufferSize)

	c.Verbose = getEnvAsBool("STEADY_VERBOSE", c.Verbose)
}

// Validate rejects values that cannot work at runtime
func (c *Config) Validate() error {
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.BaseDelay <= 0 {
		return fmt.Errorf("retry.base_delay must be positive, got %v", c.Retry.BaseDelay)
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry.max_delay %v is below retry.base_delay %v", c.Retry.MaxDelay, c.Retry.BaseDelay)
	}
	if c.Retry.BackoffMultiple < 1 {
		return fmt.Errorf("retry.backoff_multiple must be at least 1, got %g", c.Retry.BackoffMultiple)
	}

	if c.Client.BaseURL != "" {
		parsed, err := url.Parse(c.Client.BaseURL)
		if err != nil || parsed.Host == "" {
			return fmt.Errorf("client.base_url %q is not a valid URL", c.Client.BaseURL)
		}
	}
	if c.Client.Timeout <= 0 {
		return fmt.Errorf("client.timeout must be positive, got %v", c.Client.Timeout)
	}

	if c.Offline.Interval <= 0 {
		return fmt.Errorf("offline.interval must be positive, got %v", c.Offline.Interval)
	}
	if c.Offline.FailureThreshold < 1 {
		return fmt.Errorf("offline.failure_threshold must be at least 1, got %d", c.Offline.FailureThreshold)
	}

	if c.RateLimit.RPM < 1 {
		return fmt.Errorf("rate_limit.rpm must be at least 1, got %d", c.RateLimit.RPM)
	}
	switch c.RateLimit.Backend {
	case "", "memory", "uds":
	default:
		return fmt.Errorf("rate_limit.backend must be \"memory\" or \"uds\", got %q", c.RateLimit.Backend)
	}

	if c.Queue.Workers < 1 {
		return fmt.Errorf("queue.workers must be at least 1, got %d", c.Queue.Workers)
	}
	if c.Queue.EventBufferSize < 0 {
		return fmt.Errorf("queue.event_buffer_size must not be negative, got %d", c.Queue.EventBufferSize)
	}
	return nil
}

// decodeDuration parses a scalar node as a time.ParseDuration string
func decodeDuration(dst *time.Duration, node yaml.Node, field string) error {
	if node.IsZero() {
		return nil
	}
	var text string
	if err := node.Decode(&text); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = parsed
	return nil
}

// getEnv returns the value of an environment variable or a default
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an env var as an integer, with a fallback
func getEnvAsInt(key string, defaultValue int) int {
	strValue := getEnv(key, "")
	if strValue == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(strValue)
	if err != nil {
		log.Printf("Warning: could not parse env var %s as integer. Using default value.", key)
		return defaultValue
	}
	return intValue
}

// getEnvAsFloat gets an env var as a float, with a fallback
func getEnvAsFloat(key string, defaultValue float64) float64 {
	strValue := getEnv(key, "")
	if strValue == "" {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(strValue, 64)
	if err != nil {
		log.Printf("Warning: could not parse env var %s as float. Using default value.", key)
		return defaultValue
	}
	return floatValue
}

// getEnvAsDuration gets an env var as a duration ("250ms"), with a fallback
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if strValue == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(strValue)
	if err != nil {
		log.Printf("Warning: could not parse env var %s as duration. Using default value.", key)
		return defaultValue
	}
	return duration
}

// getEnvAsBool gets an env var as a bool, with a fallback
func getEnvAsBool(key string, defaultValue bool) bool {
	strValue := getEnv(key, "")
	if strValue == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(strValue)
	if err != nil {
		log.Printf("Warning: could not parse env var %s as bool. Using default value.", key)
		return defaultValue
	}
	return boolValue
}
