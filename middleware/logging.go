package middleware

import (
	"context"
	"log/slog"
	"time"
)

// Logging returns middleware that logs operation start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, op *OpInfo, next Handler) error {
		logger.Info("guarded op started",
			slog.String("op", op.Op),
			slog.String("identity_key", op.Session),
			slog.Int64("step", op.Step),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("guarded op failed",
				slog.String("op", op.Op),
				slog.String("identity_key", op.Session),
				slog.Int64("step", op.Step),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("guarded op committed",
				slog.String("op", op.Op),
				slog.String("identity_key", op.Session),
				slog.Int64("step", op.Step),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
