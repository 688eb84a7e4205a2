package chainrpc

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

// RetryConfig configures RetryWithBackoff.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         bool
}

// DefaultRetryConfig mirrors the backoff shape used elsewhere in the
// dispatch path: short initial delay, capped growth, jittered to avoid
// synchronized retries across many subscriptions coming due at once.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
		Jitter:         true,
	}
}

// RetryWithBackoff runs fn, retrying on error up to cfg.MaxRetries times
// with exponential backoff between attempts. It returns immediately, without
// retrying, if fn's error is not IsRetryable.
func RetryWithBackoff(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("chainrpc: retry cancelled: %w", ctx.Err())
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt >= cfg.MaxRetries {
			break
		}

		backoff := calculateBackoff(attempt, cfg)
		select {
		case <-ctx.Done():
			return fmt.Errorf("chainrpc: retry cancelled during backoff: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("chainrpc: attempts exhausted: %w", lastErr)
}

func calculateBackoff(attempt int, cfg RetryConfig) time.Duration {
	backoff := float64(cfg.InitialBackoff) * math.Pow(cfg.Multiplier, float64(attempt))
	if backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}
	if cfg.Jitter {
		jitter := backoff * 0.25
		backoff = backoff - jitter + (rand.Float64() * jitter * 2)
	}
	return time.Duration(backoff)
}

// IsRetryable classifies an error from a submission attempt as transient
// (network/timeout/rate-limit, worth another attempt) or terminal (the
// chain rejected the transaction outright; retrying would be wasted work or
// risk a double-submit).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "temporary failure"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "blockhash not found"),
		strings.Contains(msg, "node is behind"):
		return true
	case strings.Contains(msg, "invalid"),
		strings.Contains(msg, "malformed"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "insufficient funds"),
		strings.Contains(msg, "custom program error"),
		strings.Contains(msg, "signature verification failure"):
		return false
	default:
		return true
	}
}
