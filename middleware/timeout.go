package middleware

import (
	"context"
	"log/slog"
)

// Timeout returns middleware that enforces a per-operation deadline.
// If the operation has a non-zero Timeout, a context.WithTimeout wraps
// the handler call. When the deadline is exceeded the context is
// cancelled and the handler should return context.DeadlineExceeded.
func Timeout(logger *slog.Logger) Middleware {
	return func(ctx context.Context, op *OpInfo, next Handler) error {
		if op.Timeout > 0 {
			logger.Debug("op timeout set",
				slog.String("op", op.Op),
				slog.Duration("timeout", op.Timeout),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, op.Timeout)
			defer cancel()
		}
		return next(ctx)
	}
}
