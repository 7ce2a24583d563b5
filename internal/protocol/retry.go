package protocol

import "time"

// RetryPolicy controls how a command exchange is retried: how many
// attempts are made, how long each attempt waits for a matching
// response, and how much extra delay is inserted before each retry.
type RetryPolicy struct {
	Attempts int
	Timeout  time.Duration
	Backoff  time.Duration
}

// Delay returns the pause to insert before the given attempt
// (zero-based). The first attempt starts immediately; later attempts
// back off linearly.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return time.Duration(attempt) * p.Backoff
}

// Default policies. Sync probes are cheap and fail fast; flash data
// blocks get a long per-attempt timeout because erase can stall the
// device for a while.
var (
	DefaultRetry = RetryPolicy{Attempts: 3, Timeout: 3 * time.Second, Backoff: 100 * time.Millisecond}
	SyncRetry    = RetryPolicy{Attempts: 1, Timeout: 100 * time.Millisecond}
	EraseRetry   = RetryPolicy{Attempts: 1, Timeout: 10 * time.Second}
	WriteRetry   = RetryPolicy{Attempts: 3, Timeout: 5 * time.Second, Backoff: 100 * time.Millisecond}
	VerifyRetry  = RetryPolicy{Attempts: 1, Timeout: 10 * time.Second}
)
