package auth0

import (
	"context"
	"net/http"
	"time"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = 1 * time.Second
	defaultMaxDelay   = 10 * time.Minute
)

// RetryPolicy controls how the request pipeline retries responses whose status
// is in RetryWhen. Backoff is deterministic exponential doubling with no
// jitter: the first attempt is immediate and attempt n waits
// min(MaxDelay, 2^n * BaseDelay).
type RetryPolicy struct {
	// Enabled turns retries on. The default policy has it set.
	Enabled bool

	// MaxRetries bounds the number of retries after the initial attempt.
	MaxRetries int

	// RetryWhen lists the HTTP status codes that trigger a retry.
	RetryWhen []int

	// BaseDelay is the backoff unit doubled per attempt.
	BaseDelay time.Duration

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration
}

// defaultRetryPolicy returns the policy used when none is configured.
func defaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		Enabled:    true,
		MaxRetries: defaultMaxRetries,
		RetryWhen:  []int{http.StatusTooManyRequests},
	}
}

// applyDefaults fills zero-valued tuning knobs of an enabled policy.
func (p *RetryPolicy) applyDefaults() {
	if !p.Enabled {
		return
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if len(p.RetryWhen) == 0 {
		p.RetryWhen = []int{http.StatusTooManyRequests}
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
}

// retryable reports whether a response status triggers a retry.
func (p *RetryPolicy) retryable(status int) bool {
	if !p.Enabled {
		return false
	}
	for _, code := range p.RetryWhen {
		if code == status {
			return true
		}
	}
	return false
}

// backoff returns the delay before the given zero-based attempt.
func (p *RetryPolicy) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return delay
}

// sleep waits for the given delay or until the context is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
