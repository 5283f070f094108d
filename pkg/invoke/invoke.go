package invoke

import (
	"context"
	"time"

	"redgrab/pkg/errors"
)

// Result carries the outcome of a bounded call. OK is false when the
// deadline elapsed, the context was cancelled, or fn returned an error.
type Result[T any] struct {
	OK    bool
	Value T
	Err   error
}

type outcome[T any] struct {
	value T
	err   error
}

// WithDeadline runs fn and waits at most d for it to finish. fn receives
// a context that expires with the deadline so callees release any
// per-call state they hold. A call that outlives the deadline is
// abandoned: its eventual result is discarded.
func WithDeadline[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) Result[T] {
	var zero T

	fnCtx, cancel := context.WithTimeout(ctx, d)

	done := make(chan outcome[T], 1)
	go func() {
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				done <- outcome[T]{zero, errors.RecoverPanic(r)}
			}
		}()
		v, err := fn(fnCtx)
		done <- outcome[T]{v, err}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case out := <-done:
		if out.err != nil {
			return Result[T]{OK: false, Err: out.err}
		}
		return Result[T]{OK: true, Value: out.value}
	case <-timer.C:
		return Result[T]{OK: false, Err: errors.ErrTimeout.WithDetail("deadline_ms", d.Milliseconds())}
	case <-ctx.Done():
		return Result[T]{OK: false, Err: errors.ErrTimeout.WithCause(ctx.Err())}
	}
}
