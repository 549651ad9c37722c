package observability

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"go.uber.org/zap"
)

// FlushTelemetry runs during graceful shutdown, after in-flight requests have
// drained. Metrics are pull-based, so this logs a final gather summary and
// syncs the logger. Sync errors from a console stderr are ignored.
func FlushTelemetry(ctx context.Context, logger *zap.Logger) error {
	if logger == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("flush telemetry: %w", err)
	}
	if families, err := registry.Gather(); err != nil {
		logger.Warn("metrics gather failed", zap.Error(err))
	} else {
		logger.Info("telemetry flushed", zap.Int("metric_families", len(families)))
	}
	if err := logger.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) && !errors.Is(err, syscall.ENOTTY) {
		return fmt.Errorf("flush logs: %w", err)
	}
	return nil
}
