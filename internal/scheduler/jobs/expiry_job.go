package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"vpnkey-hub/internal/service"
)

// defaultExpiryGrace delays revocation past the expiry timestamp so a key
// renewed moments before the sweep is never torn down by a stale read.
const defaultExpiryGrace = 10 * time.Minute

type ExpiryJob struct {
	keyService *service.KeyService
	grace      time.Duration
	logger     *zap.Logger
}

func NewExpiryJob(keyService *service.KeyService, logger *zap.Logger) *ExpiryJob {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ExpiryJob{
		keyService: keyService,
		grace:      defaultExpiryGrace,
		logger:     logger,
	}
}

func (j *ExpiryJob) SweepExpired() {
	if j == nil || j.keyService == nil {
		return
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	revoked, err := j.keyService.RevokeExpired(ctx, j.grace)
	if err != nil {
		j.logger.Warn("expired key sweep finished with errors",
			zap.Int("keys_revoked", revoked),
			zap.Error(err),
		)
		return
	}

	if revoked > 0 {
		j.logger.Info("expired key sweep finished",
			zap.Int("keys_revoked", revoked),
			zap.Duration("cost", time.Since(start)),
		)
	}
}
