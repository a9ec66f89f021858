// internal/tools/retry.go
package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/madanlalit/heimdall/internal/browser/element"
	"github.com/madanlalit/heimdall/internal/config"
)

// RetryPolicy controls how often and how slowly element actions are retried.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryPolicy allows two retries starting at 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, BaseDelay: 500 * time.Millisecond}
}

// RetryPolicyFromConfig converts the agent retry settings.
func RetryPolicyFromConfig(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{MaxRetries: cfg.MaxRetries, BaseDelay: cfg.BaseDelay}
}

// Delay returns the wait before retry number attempt+1.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(1<<uint(attempt))
}

// backOff yields BaseDelay, 2*BaseDelay, ... and stops after MaxRetries
// waits or when ctx is done.
func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithMaxRetries(backoff.WithContext(b, ctx), uint64(retries))
}

// Retry runs fn until it succeeds, fails with an error element.IsRetryable
// rejects, or the policy is exhausted. desc names the target in the final
// error, e.g. "element 3 (button)".
func Retry(ctx context.Context, logger *zap.Logger, p RetryPolicy, desc string, fn func(ctx context.Context) error) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	attempts := 0
	operation := func() error {
		attempts++
		err := fn(ctx)
		if err != nil && !element.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Debug("Retrying element action.",
			zap.Int("attempt", attempts),
			zap.Int("max_retries", p.MaxRetries),
			zap.String("target", desc),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(operation, p.backOff(ctx), notify)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return ctxErr
	}
	if !element.IsRetryable(err) {
		return err
	}

	msg := fmt.Sprintf("Failed after %d attempts", attempts)
	if desc != "" {
		msg += " on " + desc
	}
	return fmt.Errorf("%s: %w", msg, err)
}
