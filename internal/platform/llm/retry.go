package llm

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go"
)

type RetryConfig struct {
	Attempts uint
	Delay    time.Duration
}

type retryProvider struct {
	inner Provider
	cfg   RetryConfig
}

// WithRetry retries transient provider failures with exponential backoff.
// Context cancellation and a second schema mismatch are not retried.
func WithRetry(p Provider, cfg RetryConfig) Provider {
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 200 * time.Millisecond
	}
	return &retryProvider{inner: p, cfg: cfg}
}

func (r *retryProvider) ModelID() string { return r.inner.ModelID() }

func (r *retryProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	var out *Response
	invalidSeen := false
	err := retry.Do(
		func() error {
			resp, err := r.inner.Generate(ctx, req)
			if err == nil {
				out = resp
				return nil
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return retry.Unrecoverable(err)
			}
			var inv *ErrInvalidResponse
			if errors.As(err, &inv) {
				if invalidSeen {
					return retry.Unrecoverable(err)
				}
				invalidSeen = true
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(r.cfg.Attempts),
		retry.Delay(r.cfg.Delay),
		retry.DelayType(func(n uint, err error, config *retry.Config) time.Duration {
			var pu *ErrProviderUnavailable
			if errors.As(err, &pu) && pu.RateLimited() && pu.RetryAfter > 0 {
				return pu.RetryAfter
			}
			return retry.BackOffDelay(n, err, config)
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return out, nil
}
