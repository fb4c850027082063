package engine

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/RealZimboGuy/approvalflow/internal/repository"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/core"
)

const (
	retryInitialInterval = 20 * time.Millisecond
	retryMaxInterval     = 200 * time.Millisecond
)

func newBackOff(ctx context.Context, maxRetries int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	b.RandomizationFactor = 0.5
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx)
}

// retryOnConflict reruns a mutation after losing an optimistic version check.
// Every other error, Unavailable included, is returned at once.
func retryOnConflict(ctx context.Context, op string, maxRetries int, fn func() error) error {
	err := backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, repository.ErrStaleVersion) {
			casConflicts.WithLabelValues(op).Inc()
			return err
		}
		return backoff.Permanent(err)
	}, newBackOff(ctx, maxRetries))
	if errors.Is(err, repository.ErrStaleVersion) {
		return core.Conflictf("instance was modified concurrently, gave up after %d retries", maxRetries).WithOp(op)
	}
	return err
}

// retryRead retries a read while the store is unavailable.
func retryRead[T any](ctx context.Context, maxRetries int, fn func() (T, error)) (T, error) {
	var out T
	err := backoff.Retry(func() error {
		v, err := fn()
		if err == nil {
			out = v
			return nil
		}
		if core.IsKind(err, core.KindUnavailable) {
			return err
		}
		return backoff.Permanent(err)
	}, newBackOff(ctx, maxRetries))
	return out, err
}

// observe records the latency of op; errp is read when the deferred call runs.
func observe(op string, start time.Time, errp *error) {
	kind := "ok"
	if errp != nil && *errp != nil {
		kind = string(core.KindOf(*errp))
	}
	operationDuration.WithLabelValues(op, kind).Observe(time.Since(start).Seconds())
}
