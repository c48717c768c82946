package service

import (
	"context"
	"errors"
	"time"

	"voucher-trade-engine/internal/core/domain"
	"voucher-trade-engine/pkg/apperror"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

// StorePolicy bounds every store call made by the services.
type StorePolicy struct {
	Timeout     time.Duration
	ReadRetries int
	// RetryInterval is the first backoff step between read attempts.
	RetryInterval time.Duration
}

// DefaultStorePolicy mirrors the engine defaults.
func DefaultStorePolicy() StorePolicy {
	return StorePolicy{Timeout: 2 * time.Second, ReadRetries: 3, RetryInterval: 50 * time.Millisecond}
}

// isDomainError reports whether err is a store answer rather than a store failure.
func isDomainError(err error) bool {
	return domain.IsNotFound(err) ||
		errors.Is(err, domain.ErrStatusConflict) ||
		errors.Is(err, domain.ErrInvalidTransition) ||
		errors.Is(err, domain.ErrVoucherClaimed)
}

// readStore runs an idempotent read under the store timeout, retrying
// infrastructure failures with exponential backoff. Domain answers are
// returned unchanged; anything else becomes StoreUnavailable.
func readStore[T any](ctx context.Context, p StorePolicy, log zerolog.Logger, op string, fn func(context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	if p.RetryInterval > 0 {
		b.InitialInterval = p.RetryInterval
	}
	tries := p.ReadRetries + 1
	if tries < 1 {
		tries = 1
	}

	attempt := 0
	out, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := callWithTimeout(ctx, p.Timeout, fn)
		if err == nil {
			return v, nil
		}
		if isDomainError(err) || ctx.Err() != nil {
			return v, backoff.Permanent(err)
		}
		log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("store read failed")
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(tries)))
	if err != nil {
		var zero T
		return zero, storeError(err)
	}
	return out, nil
}

// mutateStore runs a mutation once under the store timeout. Mutations are not
// retried; callers re-read to learn whether an ambiguous write landed.
func mutateStore[T any](ctx context.Context, p StorePolicy, fn func(context.Context) (T, error)) (T, error) {
	v, err := callWithTimeout(ctx, p.Timeout, fn)
	if err != nil {
		var zero T
		return zero, storeError(err)
	}
	return v, nil
}

// execStore is mutateStore for calls with no result.
func execStore(ctx context.Context, p StorePolicy, fn func(context.Context) error) error {
	_, err := mutateStore(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(callCtx)
}

func storeError(err error) error {
	if isDomainError(err) {
		return err
	}
	if _, ok := apperror.From(err); ok {
		return err
	}
	return apperror.ErrStoreUnavailable(err)
}
