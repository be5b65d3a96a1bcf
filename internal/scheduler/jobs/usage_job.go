package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"vpnkey-hub/internal/service"
)

type UsageJob struct {
	trafficService *service.TrafficService
	logger         *zap.Logger
}

func NewUsageJob(trafficService *service.TrafficService, logger *zap.Logger) *UsageJob {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &UsageJob{
		trafficService: trafficService,
		logger:         logger,
	}
}

func (j *UsageJob) SyncBatch() {
	if j == nil || j.trafficService == nil {
		return
	}

	start := time.Now()

	var (
		synced  int
		lastErr error
	)

	backoff := time.Second
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		synced, lastErr = j.trafficService.SyncAll(ctx)
		cancel()

		if lastErr == nil {
			j.logger.Info("usage sync batch finished",
				zap.Int("keys_synced", synced),
				zap.Duration("cost", time.Since(start)),
			)
			return
		}

		if attempt < 3 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}

	j.logger.Error("usage sync batch failed",
		zap.Int("keys_synced", synced),
		zap.Error(lastErr),
		zap.Duration("cost", time.Since(start)),
	)
}
