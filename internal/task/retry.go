package task

import "time"

// BackoffFunc returns the delay before the given attempt number (starting at 2).
type BackoffFunc func(attempt int) time.Duration

// FixedBackoff waits the same duration before every retry.
func FixedBackoff(d time.Duration) BackoffFunc {
	return func(int) time.Duration { return d }
}

// RetryPolicy bounds how many times a task is delivered and how long to wait
// between deliveries.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     BackoffFunc
}

// DefaultRetryPolicy allows three attempts, five seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     FixedBackoff(5 * time.Second),
	}
}

// ShouldRetry reports whether another attempt is allowed after attempt
// failed with err.
func (p RetryPolicy) ShouldRetry(attempt int, err error) bool {
	if err == nil || IsPermanent(err) {
		return false
	}
	return attempt < p.maxAttempts()
}

// Delay returns the wait before the next attempt.
func (p RetryPolicy) Delay(nextAttempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff(nextAttempt)
}

func (p RetryPolicy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}
