package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/Pratikkale26/Flowrge/action"
)

// Logging returns middleware that logs stage start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv *action.Invocation, next Handler) error {
		logger.Info("stage started",
			slog.String("run_id", inv.Run.ID.String()),
			slog.String("action_type", inv.Action.Type),
			slog.Int("stage", inv.Action.SortOrder),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("stage failed",
				slog.String("run_id", inv.Run.ID.String()),
				slog.String("action_type", inv.Action.Type),
				slog.Int("stage", inv.Action.SortOrder),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("stage completed",
				slog.String("run_id", inv.Run.ID.String()),
				slog.String("action_type", inv.Action.Type),
				slog.Int("stage", inv.Action.SortOrder),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
