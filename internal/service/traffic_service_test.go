package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vpnkey-hub/internal/model"
	"vpnkey-hub/internal/provisioner"
)

func newUnitTrafficService() *TrafficService {
	return &TrafficService{
		logger:          zap.NewNop(),
		nowFn:           func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) },
		syncMinInterval: defaultSyncMinInterval,
	}
}

func syncableKey(used, limit int64) *model.VPNKey {
	remoteID := "remote-1"
	return &model.VPNKey{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		ServerID:       uuid.New(),
		Name:           "laptop",
		RemoteID:       &remoteID,
		TrafficUsed:    used,
		TrafficLimit:   limit,
		ExpirationDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestSyncUsage_InvalidID(t *testing.T) {
	t.Parallel()

	svc := newUnitTrafficService()
	if _, err := svc.SyncUsage(context.Background(), "not-a-uuid"); !errors.Is(err, ErrInvalidKeyInput) {
		t.Fatalf("expected ErrInvalidKeyInput, got %v", err)
	}
}

func TestSyncUsage_RevokedKey(t *testing.T) {
	t.Parallel()

	key := syncableKey(0, 0)
	revokedAt := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	key.RevokedAt = &revokedAt

	svc := newUnitTrafficService()
	svc.keyRepo = &fakeKeyRepo{
		findByIDFn: func(_ context.Context, id uuid.UUID) (*model.VPNKey, error) {
			if id != key.ID {
				t.Fatalf("unexpected key id: %s", id)
			}
			return key, nil
		},
	}

	if _, err := svc.SyncUsage(context.Background(), key.ID.String()); !errors.Is(err, ErrKeyRevoked) {
		t.Fatalf("expected ErrKeyRevoked, got %v", err)
	}
}

func TestSyncUsage_NoRemoteHandle(t *testing.T) {
	t.Parallel()

	key := syncableKey(0, 0)
	key.RemoteID = nil

	svc := newUnitTrafficService()
	svc.keyRepo = &fakeKeyRepo{
		findByIDFn: func(context.Context, uuid.UUID) (*model.VPNKey, error) { return key, nil },
	}

	if _, err := svc.SyncUsage(context.Background(), key.ID.String()); !errors.Is(err, ErrUsageUnknown) {
		t.Fatalf("expected ErrUsageUnknown, got %v", err)
	}
}

func TestSyncUsage_RemoteNotFoundKeepsCounter(t *testing.T) {
	t.Parallel()

	key := syncableKey(500, 0)

	svc := newUnitTrafficService()
	svc.keyRepo = &fakeKeyRepo{
		findByIDFn: func(context.Context, uuid.UUID) (*model.VPNKey, error) { return key, nil },
	}
	svc.fetchRemoteUsageFn = func(context.Context, *model.VPNKey) (int64, error) {
		return 0, &provisioner.Error{Kind: provisioner.KindNotFound, Op: "usage", Err: errors.New("gone")}
	}
	applied := false
	svc.applyUsageFn = func(context.Context, uuid.UUID, int64) (*usageApplyResult, error) {
		applied = true
		return nil, nil
	}

	_, err := svc.SyncUsage(context.Background(), key.ID.String())
	if !errors.Is(err, ErrUsageUnknown) {
		t.Fatalf("expected ErrUsageUnknown, got %v", err)
	}
	if applied {
		t.Fatal("usage must not be applied when the remote has no record")
	}
}

func TestSyncUsage_AppliesReportedValue(t *testing.T) {
	t.Parallel()

	key := syncableKey(100, 1000)

	svc := newUnitTrafficService()
	svc.keyRepo = &fakeKeyRepo{
		findByIDFn: func(context.Context, uuid.UUID) (*model.VPNKey, error) { return key, nil },
	}
	svc.fetchRemoteUsageFn = func(_ context.Context, got *model.VPNKey) (int64, error) {
		if got.ID != key.ID {
			t.Fatalf("unexpected key id: %s", got.ID)
		}
		return 250, nil
	}
	svc.applyUsageFn = func(_ context.Context, keyID uuid.UUID, reported int64) (*usageApplyResult, error) {
		if keyID != key.ID {
			t.Fatalf("unexpected key id: %s", keyID)
		}
		if reported != 250 {
			t.Fatalf("expected reported 250, got %d", reported)
		}
		return &usageApplyResult{UsedBytes: 250, LimitBytes: 1000}, nil
	}

	res, err := svc.SyncUsage(context.Background(), key.ID.String())
	if err != nil {
		t.Fatalf("SyncUsage returned error: %v", err)
	}
	if res.UsedBytes != 250 || res.LimitBytes != 1000 || res.Exceeded || res.Regressed {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestSyncUsage_NewlyExceededNotifies(t *testing.T) {
	t.Parallel()

	key := syncableKey(900, 1000)
	user := &model.User{ID: key.UserID, TelegramID: 4242}

	notified := make(chan int64, 1)
	notifier := NewNotificationService(nil, zap.NewNop())
	notifier.sendFn = func(chatID int64, _ string, _ NotificationTemplate) {
		notified <- chatID
	}

	svc := newUnitTrafficService()
	svc.notifier = notifier
	svc.keyRepo = &fakeKeyRepo{
		findByIDFn: func(context.Context, uuid.UUID) (*model.VPNKey, error) { return key, nil },
	}
	svc.userRepo = &fakeUserRepo{
		findByIDFn: func(_ context.Context, id uuid.UUID) (*model.User, error) {
			if id != user.ID {
				t.Fatalf("unexpected user id: %s", id)
			}
			return user, nil
		},
	}
	svc.fetchRemoteUsageFn = func(context.Context, *model.VPNKey) (int64, error) { return 1000, nil }
	svc.applyUsageFn = func(context.Context, uuid.UUID, int64) (*usageApplyResult, error) {
		return &usageApplyResult{UsedBytes: 1000, LimitBytes: 1000, Exceeded: true, NewlyExceeded: true}, nil
	}

	res, err := svc.SyncUsage(context.Background(), key.ID.String())
	if err != nil {
		t.Fatalf("SyncUsage returned error: %v", err)
	}
	if !res.NewlyExceeded {
		t.Fatal("expected NewlyExceeded")
	}

	select {
	case chatID := <-notified:
		if chatID != user.TelegramID {
			t.Fatalf("expected chat id %d, got %d", user.TelegramID, chatID)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a quota notification")
	}
}

func TestSyncAll_SkipsUnknownAndReturnsFirstError(t *testing.T) {
	t.Parallel()

	noHandle := syncableKey(0, 0)
	noHandle.RemoteID = nil
	broken := syncableKey(0, 0)
	healthy := syncableKey(10, 0)

	svc := newUnitTrafficService()
	svc.keyRepo = &fakeKeyRepo{
		listSyncableFn: func(context.Context) ([]*model.VPNKey, error) {
			return []*model.VPNKey{noHandle, broken, healthy}, nil
		},
	}
	svc.fetchRemoteUsageFn = func(_ context.Context, key *model.VPNKey) (int64, error) {
		if key.ID == broken.ID {
			return 0, &provisioner.Error{Kind: provisioner.KindUnreachable, Op: "usage", Err: errors.New("timeout")}
		}
		return 20, nil
	}
	svc.applyUsageFn = func(_ context.Context, _ uuid.UUID, reported int64) (*usageApplyResult, error) {
		return &usageApplyResult{UsedBytes: reported}, nil
	}

	synced, err := svc.SyncAll(context.Background())
	if synced != 1 {
		t.Fatalf("expected 1 synced key, got %d", synced)
	}
	if !provisioner.IsKind(err, provisioner.KindUnreachable) {
		t.Fatalf("expected the unreachable error surfaced, got %v", err)
	}
}
