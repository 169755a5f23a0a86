// Package timeout wraps a remote call so it resolves within a bounded
// duration. Used exclusively by the Mutator: a timeout is never re-raised
// as a hard failure — it leaves the caller free to treat the queue entry
// as still pending.
package timeout

import (
	"context"
	"time"

	"github.com/edgesync/edgesync/edgeerr"
)

// Error is the distinct timeout sentinel returned when no response
// arrives before limit elapses.
type Error struct {
	Args  []any
	Limit time.Duration
}

func (e *Error) Error() string {
	return "call timed out"
}

// Call runs fn with a limit-bound context. On success it returns fn's
// result. On failure from fn it returns that error unwrapped. If limit
// elapses before fn returns, Call returns a *timeout.Error (wrapped as an
// *edgeerr.Error with Code CodeTimeout) and abandons fn: the caller does
// not await it further, and any late result from fn is discarded.
func Call[T any](ctx context.Context, limit time.Duration, args []any, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		val, err := fn(ctx)
		done <- result{val, err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		return zero, edgeerr.Timeout("remote call timed out", &Error{Args: args, Limit: limit})
	}
}
