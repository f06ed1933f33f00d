package gst

import "time"

// ReconnectConfig controls the exponential backoff between pipeline restarts.
type ReconnectConfig struct {
	MaxRetries    int           // default 5
	RetryDelay    time.Duration // default 1s
	MaxRetryDelay time.Duration // default 30s
}

// DefaultReconnectConfig returns 5 retries starting at 1s, capped at 30s.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxRetries:    5,
		RetryDelay:    1 * time.Second,
		MaxRetryDelay: 30 * time.Second,
	}
}

// backoff returns RetryDelay * 2^(attempt-1), capped at MaxRetryDelay.
func backoff(attempt int, cfg ReconnectConfig) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		return cfg.MaxRetryDelay
	}
	delay := cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
	if delay > cfg.MaxRetryDelay || delay <= 0 {
		delay = cfg.MaxRetryDelay
	}
	return delay
}
