package fetcher

import (
	"math"
	"time"
)

// RetryPolicy bounds how often a GET is attempted and how long to wait
// between attempts.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BackoffFactor is the wait before the first retry. Each further retry
	// doubles it.
	BackoffFactor time.Duration
}

// DefaultRetryPolicy allows five attempts with 1s, 2s, 4s and 8s between them.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   5,
		BackoffFactor: time.Second,
	}
}

// ShouldRetry reports whether another attempt follows the given number of
// failed attempts.
func (p RetryPolicy) ShouldRetry(failedAttempts int) bool {
	return failedAttempts < p.attempts()
}

// Backoff returns the wait before retry number retriesMade, counted from 1:
// BackoffFactor * 2^(retriesMade-1).
func (p RetryPolicy) Backoff(retriesMade int) time.Duration {
	if retriesMade < 1 || p.BackoffFactor <= 0 {
		return 0
	}
	return time.Duration(float64(p.BackoffFactor) * math.Pow(2, float64(retriesMade-1)))
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}
