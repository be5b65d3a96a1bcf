package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"vpnkey-hub/internal/cache"
	"vpnkey-hub/internal/metrics"
	"vpnkey-hub/internal/model"
	"vpnkey-hub/internal/provisioner"
	"vpnkey-hub/internal/repository"
)

// ErrUsageUnknown means the remote side has no usage record for the key. The
// local counter is left untouched; unknown is not zero.
var ErrUsageUnknown = errors.New("remote usage unknown")

const defaultSyncMinInterval = 5 * time.Minute

type SyncResult struct {
	KeyID         uuid.UUID `json:"key_id"`
	UsedBytes     int64     `json:"used_bytes"`
	LimitBytes    int64     `json:"limit_bytes"`
	Exceeded      bool      `json:"exceeded"`
	NewlyExceeded bool      `json:"newly_exceeded"`
	// Regressed is set when the remote reported less than the stored value;
	// the stored value wins and the conflict is logged.
	Regressed bool `json:"regressed"`
}

type usageApplyResult struct {
	UsedBytes     int64
	LimitBytes    int64
	Exceeded      bool
	NewlyExceeded bool
	Regressed     bool
}

// TrafficService reconciles the cached local usage counters against what the
// remote provisioner reports. It only ever reads remote state; the local
// counter is monotonic and the exceeded flag is cleared solely by renewal.
type TrafficService struct {
	pool         *pgxpool.Pool
	keyRepo      repository.KeyRepository
	userRepo     repository.UserRepository
	serverRepo   repository.ServerRepository
	provisioners provisioner.Factory
	usageCache   *cache.UsageCache
	notifier     *NotificationService
	logger       *zap.Logger

	nowFn           func() time.Time
	syncMinInterval time.Duration

	// Test seams; production wiring leaves them nil and the default
	// implementations run.
	fetchRemoteUsageFn func(ctx context.Context, key *model.VPNKey) (int64, error)
	applyUsageFn       func(ctx context.Context, keyID uuid.UUID, reported int64) (*usageApplyResult, error)
}

func NewTrafficService(
	pool *pgxpool.Pool,
	keyRepo repository.KeyRepository,
	userRepo repository.UserRepository,
	serverRepo repository.ServerRepository,
	provisioners provisioner.Factory,
	usageCache *cache.UsageCache,
	notifier *NotificationService,
	logger *zap.Logger,
) *TrafficService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TrafficService{
		pool:            pool,
		keyRepo:         keyRepo,
		userRepo:        userRepo,
		serverRepo:      serverRepo,
		provisioners:    provisioners,
		usageCache:      usageCache,
		notifier:        notifier,
		logger:          logger,
		nowFn:           func() time.Time { return time.Now().UTC() },
		syncMinInterval: defaultSyncMinInterval,
	}
}

// SyncUsage pulls the remote counter for one key and applies it locally.
func (s *TrafficService) SyncUsage(ctx context.Context, keyID string) (*SyncResult, error) {
	id, err := uuid.Parse(keyID)
	if err != nil {
		return nil, ErrInvalidKeyInput
	}

	key, err := s.keyRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}

	return s.syncKey(ctx, key)
}

// SyncAll sweeps every unrevoked key that has a remote handle. Keys with a
// fresh cache entry are skipped. Per-key failures are logged and the sweep
// continues; the first error is returned for job-level retry.
func (s *TrafficService) SyncAll(ctx context.Context) (int, error) {
	keys, err := s.keyRepo.ListSyncable(ctx)
	if err != nil {
		return 0, err
	}

	start := s.nowFn()
	synced := 0
	var firstErr error

	for _, key := range keys {
		if s.recentlySynced(ctx, key.ID) {
			continue
		}

		if _, err := s.syncKey(ctx, key); err != nil {
			if errors.Is(err, ErrUsageUnknown) || errors.Is(err, ErrKeyRevoked) {
				continue
			}
			if firstErr == nil {
				firstErr = err
			}
			metrics.IncUsageSyncError()
			s.logger.Warn("usage sync failed",
				zap.String("key_id", key.ID.String()),
				zap.Error(err),
			)
			continue
		}
		synced++
	}

	metrics.ObserveUsageSweep(time.Since(start), synced)
	return synced, firstErr
}

func (s *TrafficService) syncKey(ctx context.Context, key *model.VPNKey) (*SyncResult, error) {
	if key.IsRevoked() {
		return nil, ErrKeyRevoked
	}
	if key.RemoteID == nil {
		return nil, ErrUsageUnknown
	}

	reported, err := s.fetchRemoteUsage(ctx, key)
	if err != nil {
		if provisioner.IsKind(err, provisioner.KindNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUsageUnknown, err)
		}
		return nil, err
	}

	applied, err := s.applyUsage(ctx, key.ID, reported)
	if err != nil {
		return nil, err
	}

	if applied.Regressed {
		s.logger.Warn("remote reported less usage than stored, keeping stored value",
			zap.String("key_id", key.ID.String()),
			zap.Int64("reported", reported),
			zap.Int64("stored", applied.UsedBytes),
		)
	}

	if s.usageCache != nil {
		s.usageCache.Set(ctx, key.ID.String(), applied.UsedBytes, s.nowFn())
	}

	if applied.NewlyExceeded {
		metrics.IncQuotaExceeded()
		s.notifyQuotaExceeded(ctx, key)
	}

	return &SyncResult{
		KeyID:         key.ID,
		UsedBytes:     applied.UsedBytes,
		LimitBytes:    applied.LimitBytes,
		Exceeded:      applied.Exceeded,
		NewlyExceeded: applied.NewlyExceeded,
		Regressed:     applied.Regressed,
	}, nil
}

func (s *TrafficService) fetchRemoteUsage(ctx context.Context, key *model.VPNKey) (int64, error) {
	if s.fetchRemoteUsageFn != nil {
		return s.fetchRemoteUsageFn(ctx, key)
	}

	server, err := s.serverRepo.FindByID(ctx, key.ServerID)
	if err != nil {
		return 0, err
	}
	client, err := s.provisioners.ClientFor(server)
	if err != nil {
		return 0, err
	}

	return client.Usage(ctx, *key.RemoteID)
}

// applyUsage commits the reported value under a row lock. The counter never
// decreases and the exceeded flag never clears here: quota zero disables the
// check, and a regression keeps the stored value.
func (s *TrafficService) applyUsage(ctx context.Context, keyID uuid.UUID, reported int64) (*usageApplyResult, error) {
	if s.applyUsageFn != nil {
		return s.applyUsageFn(ctx, keyID, reported)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var (
		stored      int64
		limit       int64
		wasExceeded bool
		revokedAt   *time.Time
	)
	err = tx.QueryRow(
		ctx,
		`SELECT traffic_used, traffic_limit, limit_exceeded, revoked_at
		   FROM vpn_keys
		  WHERE id = $1
		  FOR UPDATE`,
		keyID,
	).Scan(&stored, &limit, &wasExceeded, &revokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	if revokedAt != nil {
		return nil, ErrKeyRevoked
	}

	used := stored
	regressed := false
	if reported > stored {
		used = reported
	} else if reported < stored {
		regressed = true
	}

	exceeded := wasExceeded || (limit > 0 && used >= limit)

	_, err = tx.Exec(
		ctx,
		`UPDATE vpn_keys
		    SET traffic_used = $2,
		        limit_exceeded = $3,
		        updated_at = NOW()
		  WHERE id = $1`,
		keyID,
		used,
		exceeded,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &usageApplyResult{
		UsedBytes:     used,
		LimitBytes:    limit,
		Exceeded:      exceeded,
		NewlyExceeded: exceeded && !wasExceeded,
		Regressed:     regressed,
	}, nil
}

func (s *TrafficService) recentlySynced(ctx context.Context, keyID uuid.UUID) bool {
	if s.usageCache == nil {
		return false
	}

	_, syncedAt, ok := s.usageCache.Get(ctx, keyID.String())
	if !ok {
		return false
	}
	return s.nowFn().Sub(syncedAt) < s.syncMinInterval
}

func (s *TrafficService) notifyQuotaExceeded(ctx context.Context, key *model.VPNKey) {
	if s.notifier == nil {
		return
	}

	user, err := s.userRepo.FindByID(ctx, key.UserID)
	if err != nil {
		s.logger.Warn("load user for quota notice failed",
			zap.String("key_id", key.ID.String()),
			zap.Error(err),
		)
		return
	}

	s.notifier.NotifyQuotaExceeded(user, key)
}
