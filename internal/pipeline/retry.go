package pipeline

import (
	"context"
	"math/rand"
	"time"

	"github.com/everstacklabs/modelwatch/internal/provider"
)

// RetryPolicy controls fetch retries: transient failures back off
// exponentially with jitter, permanent failures stop immediately.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// backoff returns the wait before the given attempt (1-based): base doubled
// per attempt, plus up to 50% jitter.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BaseBackoff << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(d)/2 + 1))
	return d + jitter
}

// fetchWithRetry runs fetch attempts under the policy and reports how many
// were made.
func (p RetryPolicy) fetchWithRetry(ctx context.Context, f provider.Fetcher, timeout time.Duration) ([]byte, int, error) {
	if p.sleep == nil {
		p.sleep = defaultSleep
	}
	// Always make at least one attempt; a zero policy must not turn into a
	// silent nil-payload success.
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		raw, err := provider.Do(ctx, f, timeout)
		if err == nil {
			return raw, attempt, nil
		}
		lastErr = err

		if provider.Classify(err) == provider.Permanent {
			return nil, attempt, err
		}
		if ctx.Err() != nil {
			return nil, attempt, ctx.Err()
		}
		if attempt == p.MaxAttempts {
			break
		}
		if err := p.sleep(ctx, p.backoff(attempt)); err != nil {
			return nil, attempt, err
		}
	}
	return nil, p.MaxAttempts, lastErr
}
