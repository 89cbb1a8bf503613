package fetcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyBackoff(t *testing.T) {
	t.Parallel()

	p := DefaultRetryPolicy()
	got := make([]time.Duration, 0, 4)
	for retry := 1; retry <= 4; retry++ {
		got = append(got, p.Backoff(retry))
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}, got)
	assert.Equal(t, time.Duration(0), p.Backoff(0))
}

func TestRetryPolicyBackoffScalesWithFactor(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{MaxAttempts: 3, BackoffFactor: 250 * time.Millisecond}
	assert.Equal(t, 250*time.Millisecond, p.Backoff(1))
	assert.Equal(t, time.Second, p.Backoff(3))

	assert.Equal(t, time.Duration(0), RetryPolicy{MaxAttempts: 3}.Backoff(2))
}

func TestRetryPolicyShouldRetry(t *testing.T) {
	t.Parallel()

	p := DefaultRetryPolicy()
	for failed := 1; failed < 5; failed++ {
		assert.True(t, p.ShouldRetry(failed), "failed=%d", failed)
	}
	assert.False(t, p.ShouldRetry(5))

	assert.False(t, RetryPolicy{}.ShouldRetry(1), "zero policy makes a single attempt")
}
