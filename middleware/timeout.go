package middleware

import (
	"context"
	"time"

	"github.com/Pratikkale26/Flowrge/action"
)

// Timeout returns middleware that enforces a per-stage execution
// deadline. When the deadline is exceeded the context is cancelled and
// the handler should return context.DeadlineExceeded.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ *action.Invocation, next Handler) error {
		if d <= 0 {
			return next(ctx)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next(ctx)
	}
}
