package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"vpnkey-hub/internal/metrics"
	"vpnkey-hub/internal/model"
	"vpnkey-hub/internal/provisioner"
	"vpnkey-hub/internal/repository"
)

var (
	ErrInvalidKeyInput    = errors.New("invalid key input")
	ErrKeyNotFound        = errors.New("vpn key not found")
	ErrKeyRevoked         = errors.New("vpn key is revoked")
	ErrKeyExpired         = errors.New("vpn key is expired")
	ErrQuotaExceeded      = errors.New("traffic quota exceeded")
	ErrUserNotFound       = errors.New("user not found")
	ErrServerNotFound     = errors.New("vpn server not found")
	ErrServerUnavailable  = errors.New("vpn server is not active")
	ErrPlanNotFound       = errors.New("subscription plan not found")
	ErrNoDefaultPlan      = errors.New("no default subscription plan configured")
	ErrDeviceLimitReached = errors.New("device limit reached for subscriber")
)

const defaultKeyName = "VPN Key"

type IssueKeyRequest struct {
	UserID   string  `json:"user_id"`
	ServerID string  `json:"server_id"`
	PlanID   *string `json:"plan_id,omitempty"`
	Name     string  `json:"name"`
}

type RenewKeyRequest struct {
	// ExtraDays overrides the plan duration; required when the key's plan has
	// been deleted.
	ExtraDays *int `json:"extra_days,omitempty"`
	// ResetQuota starts a fresh billing period: usage drops to zero, the
	// exceeded flag clears and the byte limit is recomputed from the plan.
	ResetQuota bool `json:"reset_quota"`
}

// ClientConfig is what a subscriber receives when a key is delivered. It is
// produced only for keys that are neither expired nor over quota.
type ClientConfig struct {
	AccessPayload  string    `json:"access_payload"`
	ServerName     string    `json:"server_name"`
	ServerLocation string    `json:"server_location"`
	ExpiresAt      time.Time `json:"expires_at"`
	TrafficLimit   int64     `json:"traffic_limit_bytes"`
}

// KeyService orchestrates the key lifecycle against two stores that are never
// mutated atomically together: the local record and the remote provisioner.
// The ordering contract is at-most-once local record (remote create must
// succeed before the local insert commits) and at-least-once remote deletion
// attempt (the local record survives until the remote delete succeeds or the
// remote reports the handle gone).
type KeyService struct {
	pool         *pgxpool.Pool
	userRepo     repository.UserRepository
	serverRepo   repository.ServerRepository
	planRepo     repository.PlanRepository
	keyRepo      repository.KeyRepository
	provisioners provisioner.Factory
	notifier     *NotificationService
	logger       *zap.Logger

	nowFn func() time.Time
}

func NewKeyService(
	pool *pgxpool.Pool,
	userRepo repository.UserRepository,
	serverRepo repository.ServerRepository,
	planRepo repository.PlanRepository,
	keyRepo repository.KeyRepository,
	provisioners provisioner.Factory,
	notifier *NotificationService,
	logger *zap.Logger,
) *KeyService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &KeyService{
		pool:         pool,
		userRepo:     userRepo,
		serverRepo:   serverRepo,
		planRepo:     planRepo,
		keyRepo:      keyRepo,
		provisioners: provisioners,
		notifier:     notifier,
		logger:       logger,
		nowFn:        func() time.Time { return time.Now().UTC() },
	}
}

// Issue provisions a key remotely, then commits the local record. A remote
// failure aborts the whole operation with no local trace. Retrying after an
// unreachable createKey can leave an orphan remote key; no dedupe token exists
// yet, so callers must not retry blindly.
func (s *KeyService) Issue(ctx context.Context, req IssueKeyRequest) (*model.VPNKey, error) {
	userID, err := uuid.Parse(strings.TrimSpace(req.UserID))
	if err != nil {
		return nil, ErrInvalidKeyInput
	}
	serverID, err := uuid.Parse(strings.TrimSpace(req.ServerID))
	if err != nil {
		return nil, ErrInvalidKeyInput
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	server, err := s.serverRepo.FindByID(ctx, serverID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrServerNotFound
		}
		return nil, err
	}
	if !server.Active {
		return nil, ErrServerUnavailable
	}

	plan, err := s.resolvePlan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}

	client, err := s.provisioners.ClientFor(server)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = defaultKeyName
	}

	now := s.nowFn()
	expiration := ComputeExpiration(nil, plan.DurationDays, now)
	quota := PlanQuotaBytes(plan.TrafficLimitGB)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// The subscriber row lock closes the count-then-insert race on the
	// device limit: concurrent issues for the same subscriber serialize here.
	var lockedID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&lockedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	var activeKeys int
	err = tx.QueryRow(
		ctx,
		`SELECT COUNT(*)
		   FROM vpn_keys
		  WHERE user_id = $1
		    AND revoked_at IS NULL
		    AND expiration_date > $2`,
		userID,
		now,
	).Scan(&activeKeys)
	if err != nil {
		return nil, err
	}
	if activeKeys >= plan.MaxDevices {
		return nil, ErrDeviceLimitReached
	}

	remoteName := fmt.Sprintf("%s - %s", user.DisplayName(), name)
	remote, err := client.CreateKey(ctx, remoteName)
	if err != nil {
		return nil, fmt.Errorf("create remote key: %w", err)
	}

	if quota > 0 {
		if limitErr := client.SetDataLimit(ctx, remote.ID, quota); limitErr != nil {
			s.cleanupRemoteKey(client, remote.ID)
			return nil, fmt.Errorf("set remote data limit: %w", limitErr)
		}
	}

	key := &model.VPNKey{
		ID:             uuid.New(),
		UserID:         userID,
		ServerID:       serverID,
		PlanID:         &plan.ID,
		Name:           name,
		RemoteID:       &remote.ID,
		AccessPayload:  remote.AccessURL,
		ExpirationDate: expiration,
		TrafficLimit:   quota,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err = tx.Exec(
		ctx,
		`INSERT INTO vpn_keys (
			id, user_id, server_id, plan_id, name,
			remote_id, access_payload, expiration_date,
			traffic_limit, traffic_used, limit_exceeded,
			revoked_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, FALSE, NULL, $10, $11)`,
		key.ID,
		key.UserID,
		key.ServerID,
		key.PlanID,
		key.Name,
		key.RemoteID,
		key.AccessPayload,
		key.ExpirationDate,
		key.TrafficLimit,
		key.CreatedAt,
		key.UpdatedAt,
	)
	if err != nil {
		s.cleanupRemoteKey(client, remote.ID)
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		s.cleanupRemoteKey(client, remote.ID)
		return nil, err
	}

	metrics.IncKeyIssued(string(server.Kind))
	s.logger.Info("vpn key issued",
		zap.String("key_id", key.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("server_id", serverID.String()),
		zap.String("plan", plan.Name),
		zap.Time("expires_at", expiration),
	)

	return key, nil
}

// Renew extends the expiration locally; remote state is untouched. The new
// expiration is always derived from the stored one, never from client input.
func (s *KeyService) Renew(ctx context.Context, keyID string, req RenewKeyRequest) (*model.VPNKey, error) {
	id, err := uuid.Parse(strings.TrimSpace(keyID))
	if err != nil {
		return nil, ErrInvalidKeyInput
	}
	if req.ExtraDays != nil && *req.ExtraDays <= 0 {
		return nil, ErrInvalidKeyInput
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var (
		planID        *uuid.UUID
		expiration    time.Time
		trafficLimit  int64
		trafficUsed   int64
		limitExceeded bool
		revokedAt     *time.Time
	)
	err = tx.QueryRow(
		ctx,
		`SELECT plan_id, expiration_date, traffic_limit, traffic_used, limit_exceeded, revoked_at
		   FROM vpn_keys
		  WHERE id = $1
		  FOR UPDATE`,
		id,
	).Scan(&planID, &expiration, &trafficLimit, &trafficUsed, &limitExceeded, &revokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	if revokedAt != nil {
		return nil, ErrKeyRevoked
	}

	var plan *model.SubscriptionPlan
	if planID != nil {
		plan, err = s.planRepo.FindByID(ctx, *planID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}

	days := 0
	switch {
	case req.ExtraDays != nil:
		days = *req.ExtraDays
	case plan != nil:
		days = plan.DurationDays
	default:
		// The plan was deleted; duration is frozen and the caller must say
		// how long to extend.
		return nil, ErrInvalidKeyInput
	}

	now := s.nowFn()
	newExpiration := ComputeExpiration(&expiration, days, now)

	if req.ResetQuota {
		trafficUsed = 0
		limitExceeded = false
		if plan != nil {
			trafficLimit = PlanQuotaBytes(plan.TrafficLimitGB)
		}
	}

	_, err = tx.Exec(
		ctx,
		`UPDATE vpn_keys
		    SET expiration_date = $2,
		        traffic_limit = $3,
		        traffic_used = $4,
		        limit_exceeded = $5,
		        updated_at = NOW()
		  WHERE id = $1`,
		id,
		newExpiration,
		trafficLimit,
		trafficUsed,
		limitExceeded,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.logger.Info("vpn key renewed",
		zap.String("key_id", id.String()),
		zap.Time("expires_at", newExpiration),
		zap.Bool("quota_reset", req.ResetQuota),
	)

	return s.keyRepo.FindByID(ctx, id)
}

// Revoke deletes the remote handle first and soft-deletes the local record
// only once the remote side is known to be gone. NotFound from the remote
// counts as success, which makes Revoke idempotent. A retryable remote
// failure leaves the record untouched so the handle survives for the retry.
func (s *KeyService) Revoke(ctx context.Context, keyID string) error {
	id, err := uuid.Parse(strings.TrimSpace(keyID))
	if err != nil {
		return ErrInvalidKeyInput
	}
	return s.revokeByID(ctx, id)
}

func (s *KeyService) revokeByID(ctx context.Context, id uuid.UUID) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var (
		serverID  uuid.UUID
		remoteID  *string
		revokedAt *time.Time
	)
	err = tx.QueryRow(
		ctx,
		`SELECT server_id, remote_id, revoked_at
		   FROM vpn_keys
		  WHERE id = $1
		  FOR UPDATE`,
		id,
	).Scan(&serverID, &remoteID, &revokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrKeyNotFound
		}
		return err
	}
	if revokedAt != nil {
		return nil
	}

	if remoteID != nil {
		server, err := s.serverRepo.FindByID(ctx, serverID)
		if err != nil {
			return err
		}
		client, err := s.provisioners.ClientFor(server)
		if err != nil {
			return err
		}

		if err := client.DeleteKey(ctx, *remoteID); err != nil {
			if !provisioner.IsKind(err, provisioner.KindNotFound) {
				return fmt.Errorf("delete remote key: %w", err)
			}
			s.logger.Debug("remote key already gone",
				zap.String("key_id", id.String()),
				zap.String("remote_id", *remoteID),
			)
		}
	}

	now := s.nowFn()
	_, err = tx.Exec(
		ctx,
		`UPDATE vpn_keys SET revoked_at = $2, updated_at = NOW() WHERE id = $1`,
		id,
		now,
	)
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	metrics.IncKeyRevoked()
	s.logger.Info("vpn key revoked", zap.String("key_id", id.String()))

	return nil
}

// DeliverConfig hands out the client credential payload. Expiry and quota are
// checked independently: they are distinct denial reasons with distinct
// user-facing messages.
func (s *KeyService) DeliverConfig(ctx context.Context, keyID string) (*ClientConfig, error) {
	id, err := uuid.Parse(strings.TrimSpace(keyID))
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
	if key.IsRevoked() {
		return nil, ErrKeyRevoked
	}

	now := s.nowFn()
	if key.IsExpired(now) {
		return nil, ErrKeyExpired
	}
	if key.LimitExceeded {
		return nil, ErrQuotaExceeded
	}

	server, err := s.serverRepo.FindByID(ctx, key.ServerID)
	if err != nil {
		return nil, err
	}

	return &ClientConfig{
		AccessPayload:  key.AccessPayload,
		ServerName:     server.Name,
		ServerLocation: server.Location,
		ExpiresAt:      key.ExpirationDate.UTC(),
		TrafficLimit:   key.TrafficLimit,
	}, nil
}

func (s *KeyService) Get(ctx context.Context, keyID string) (*model.VPNKey, error) {
	id, err := uuid.Parse(strings.TrimSpace(keyID))
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
	return key, nil
}

func (s *KeyService) List(ctx context.Context, filter repository.KeyListFilter) ([]*model.VPNKey, error) {
	return s.keyRepo.List(ctx, filter)
}

// RevokeExpired sweeps keys whose expiration passed more than grace ago and
// revokes them remotely and locally. Failures are logged per key and the
// sweep continues; the first error is reported for job-level retry.
func (s *KeyService) RevokeExpired(ctx context.Context, grace time.Duration) (int, error) {
	cutoff := s.nowFn().Add(-grace)

	expired, err := s.keyRepo.ListExpiredBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	var firstErr error
	revoked := 0
	for _, key := range expired {
		if err := s.revokeByID(ctx, key.ID); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			s.logger.Warn("revoke expired key failed",
				zap.String("key_id", key.ID.String()),
				zap.Error(err),
			)
			continue
		}
		revoked++
		s.notifyKeyExpired(ctx, key)
	}

	return revoked, firstErr
}

func (s *KeyService) notifyKeyExpired(ctx context.Context, key *model.VPNKey) {
	if s.notifier == nil {
		return
	}

	user, err := s.userRepo.FindByID(ctx, key.UserID)
	if err != nil {
		s.logger.Warn("load user for expiry notice failed",
			zap.String("key_id", key.ID.String()),
			zap.Error(err),
		)
		return
	}

	s.notifier.NotifyKeyExpired(user, key)
}

func (s *KeyService) resolvePlan(ctx context.Context, planID *string) (*model.SubscriptionPlan, error) {
	if planID == nil || strings.TrimSpace(*planID) == "" {
		plan, err := s.planRepo.FindDefault(ctx)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrNoDefaultPlan
			}
			return nil, err
		}
		return plan, nil
	}

	id, err := uuid.Parse(strings.TrimSpace(*planID))
	if err != nil {
		return nil, ErrInvalidKeyInput
	}

	plan, err := s.planRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return plan, nil
}

// cleanupRemoteKey is best effort: a failed local commit after a successful
// remote create would otherwise strand a remote key nobody tracks. A timed-out
// createKey that actually completed server-side can still leave one; the
// periodic sweep does not reconcile those yet.
func (s *KeyService) cleanupRemoteKey(client provisioner.Client, remoteID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.DeleteKey(ctx, remoteID); err != nil && !provisioner.IsKind(err, provisioner.KindNotFound) {
		s.logger.Warn("cleanup of remote key failed, orphan left behind",
			zap.String("remote_id", remoteID),
			zap.Error(err),
		)
	}
}
