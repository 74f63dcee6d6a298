// Package retry executes operations with classified, exponentially backed-off
// retries.
//
// On exhaustion or a fatal failure the error returned by the operation is
// handed back unchanged, so callers can still branch on its type with
// errors.As. Backoff waits go through the policy's Sleeper and end early
// when the context is cancelled.
package retry

import (
	"context"

	"github.com/dailyyoga/contractflow/apierr"
	"go.uber.org/zap"
)

// Do invokes op until it succeeds, fails with an error the policy does not
// retry, or MaxAttempts invocations have failed.
//
// The first 401 seen when p.Refresh is set triggers one credential refresh
// and an immediate re-invocation that does not count against MaxAttempts.
// A 401 already marked Refreshed by the caller is not refreshed again.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	p = p.MergeDefaults()
	if err := p.Validate(); err != nil {
		return zero, err
	}

	refreshed := false
	for attempt := 1; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				p.Logger.Debug("operation succeeded after retry",
					zap.String("operation", p.Name),
					zap.Int("attempt", attempt),
				)
			}
			return v, nil
		}

		if p.Refresh != nil && !refreshed && apierr.NeedsRefresh(err) {
			refreshed = true
			if rerr := p.Refresh(ctx); rerr != nil {
				p.Logger.Warn("credential refresh failed",
					zap.String("operation", p.Name),
					zap.Error(rerr),
				)
				return zero, err
			}
			p.Logger.Info("credentials refreshed, retrying", zap.String("operation", p.Name))
			attempt--
			continue
		}

		if !p.Classify(err) {
			return zero, err
		}
		if attempt >= p.MaxAttempts {
			p.Logger.Warn("retries exhausted",
				zap.String("operation", p.Name),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return zero, err
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		delay := p.jittered(attempt)
		p.Logger.Warn("operation failed, will retry",
			zap.String("operation", p.Name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.MaxAttempts),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if p.OnRetry != nil {
			p.OnRetry(attempt, p.MaxAttempts, delay, err)
		}
		if err := p.Sleeper.Sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}

// Run is Do for operations that only return an error.
func Run(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
