package config

import (
	"os"
	"strconv"
	"time"
)

// Timeouts holds the timing settings of remote operations.
// These values can be customized via environment variables.
type Timeouts struct {
	TaskPollInterval  time.Duration // Interval between task status reads
	TaskMaxWait       time.Duration // Maximum time to wait for one remote task
	BusyRetryAfter    time.Duration // Delay returned when the gateway is busy
	RequestTimeout    time.Duration // Timeout of a single HTTP request
	RetryMaxAttempts  int           // Maximum number of HTTP retry attempts
	RetryInitialDelay time.Duration // Initial delay between HTTP retries
}

// LoadTimeouts loads timeout configuration from environment variables.
// If an environment variable is not set or invalid, a default value is used.
//
// Environment Variables:
//   - EDGEFIP_TASK_POLL_INTERVAL (default: 3s)
//   - EDGEFIP_TASK_MAX_WAIT (default: 10m)
//   - EDGEFIP_BUSY_RETRY_AFTER (default: 10s)
//   - EDGEFIP_REQUEST_TIMEOUT (default: 60s)
//   - EDGEFIP_RETRY_MAX_ATTEMPTS (default: 3)
//   - EDGEFIP_RETRY_INITIAL_DELAY (default: 1s)
func LoadTimeouts() *Timeouts {
	return &Timeouts{
		TaskPollInterval:  parseDuration("EDGEFIP_TASK_POLL_INTERVAL", 3*time.Second),
		TaskMaxWait:       parseDuration("EDGEFIP_TASK_MAX_WAIT", 10*time.Minute),
		BusyRetryAfter:    parseDuration("EDGEFIP_BUSY_RETRY_AFTER", 10*time.Second),
		RequestTimeout:    parseDuration("EDGEFIP_REQUEST_TIMEOUT", 60*time.Second),
		RetryMaxAttempts:  parseInt("EDGEFIP_RETRY_MAX_ATTEMPTS", 3),
		RetryInitialDelay: parseDuration("EDGEFIP_RETRY_INITIAL_DELAY", 1*time.Second),
	}
}

// parseDuration parses a positive duration from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}

	return d
}

// parseInt parses a non-negative integer from an environment variable.
func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return defaultVal
	}

	return i
}
