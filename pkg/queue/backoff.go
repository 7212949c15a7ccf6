package queue

import (
	"math/rand"
	"time"
)

const (
	defaultRetryBaseDelay = time.Second
	defaultRetryMaxDelay  = 2 * time.Minute
	jitterFraction        = 0.25
)

// RetryDelay returns the exponential backoff delay for the given attempt
// (1-based), capped at maxDelay, with up to 25% random jitter added so
// retries from concurrent failures spread out.
func RetryDelay(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	if baseDelay <= 0 {
		baseDelay = defaultRetryBaseDelay
	}
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	if attempt < 1 {
		attempt = 1
	}

	delay := baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			delay = maxDelay
			break
		}
	}

	jitter := time.Duration(rand.Int63n(int64(float64(delay)*jitterFraction) + 1))
	delay += jitter
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}
