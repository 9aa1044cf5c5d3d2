package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/vetnova/vetnova/internal/delivery"
)

// NewAutoAssignHandler adapts the delivery assigner to an Asynq handler.
func NewAutoAssignHandler(assigner *delivery.Assigner, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		if _, err := decodePayload[AutoAssignPayload](t); err != nil {
			return err
		}
		assigned, err := assigner.AutoAssignPending(ctx)
		if err != nil {
			logger.Error("auto assign run failed", slog.Any("error", err))
			return err
		}
		logger.Info("auto assign run complete", slog.Int("assigned", len(assigned)))
		return nil
	}
}
