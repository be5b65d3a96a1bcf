package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vpnkey-hub/internal/model"
)

func newUnitKeyService() *KeyService {
	return &KeyService{
		logger: zap.NewNop(),
		nowFn:  func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) },
	}
}

func deliverableKey() *model.VPNKey {
	return &model.VPNKey{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		ServerID:       uuid.New(),
		Name:           "phone",
		AccessPayload:  "ss://secret@host:443",
		ExpirationDate: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
		TrafficLimit:   50 << 30,
	}
}

func TestDeliverConfig_HappyPath(t *testing.T) {
	t.Parallel()

	key := deliverableKey()
	server := &model.VPNServer{ID: key.ServerID, Name: "ams-1", Location: "Amsterdam"}

	svc := newUnitKeyService()
	svc.keyRepo = &fakeKeyRepo{
		findByIDFn: func(_ context.Context, id uuid.UUID) (*model.VPNKey, error) {
			if id != key.ID {
				t.Fatalf("unexpected key id: %s", id)
			}
			return key, nil
		},
	}
	svc.serverRepo = &fakeServerRepo{
		findByIDFn: func(_ context.Context, id uuid.UUID) (*model.VPNServer, error) {
			if id != server.ID {
				t.Fatalf("unexpected server id: %s", id)
			}
			return server, nil
		},
	}

	cfg, err := svc.DeliverConfig(context.Background(), key.ID.String())
	if err != nil {
		t.Fatalf("DeliverConfig returned error: %v", err)
	}
	if cfg.AccessPayload != key.AccessPayload {
		t.Fatalf("expected access payload %q, got %q", key.AccessPayload, cfg.AccessPayload)
	}
	if cfg.ServerName != "ams-1" || cfg.ServerLocation != "Amsterdam" {
		t.Fatalf("unexpected server details: %+v", cfg)
	}
	if !cfg.ExpiresAt.Equal(key.ExpirationDate) {
		t.Fatalf("expected expiry %s, got %s", key.ExpirationDate, cfg.ExpiresAt)
	}
}

func TestDeliverConfig_Denials(t *testing.T) {
	t.Parallel()

	revokedAt := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		mutate  func(key *model.VPNKey)
		wantErr error
	}{
		{
			name:    "revoked",
			mutate:  func(key *model.VPNKey) { key.RevokedAt = &revokedAt },
			wantErr: ErrKeyRevoked,
		},
		{
			name: "expired",
			mutate: func(key *model.VPNKey) {
				key.ExpirationDate = time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC)
			},
			wantErr: ErrKeyExpired,
		},
		{
			name:    "over quota",
			mutate:  func(key *model.VPNKey) { key.LimitExceeded = true },
			wantErr: ErrQuotaExceeded,
		},
		{
			// Revocation wins even when the key is also expired and over
			// quota.
			name: "revoked and expired",
			mutate: func(key *model.VPNKey) {
				key.RevokedAt = &revokedAt
				key.ExpirationDate = time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC)
				key.LimitExceeded = true
			},
			wantErr: ErrKeyRevoked,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			key := deliverableKey()
			tc.mutate(key)

			svc := newUnitKeyService()
			svc.keyRepo = &fakeKeyRepo{
				findByIDFn: func(context.Context, uuid.UUID) (*model.VPNKey, error) { return key, nil },
			}

			if _, err := svc.DeliverConfig(context.Background(), key.ID.String()); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestDeliverConfig_NotFound(t *testing.T) {
	t.Parallel()

	svc := newUnitKeyService()
	svc.keyRepo = &fakeKeyRepo{}

	if _, err := svc.DeliverConfig(context.Background(), uuid.NewString()); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	if _, err := svc.DeliverConfig(context.Background(), "garbage"); !errors.Is(err, ErrInvalidKeyInput) {
		t.Fatalf("expected ErrInvalidKeyInput, got %v", err)
	}
}

func TestIssue_InputValidation(t *testing.T) {
	t.Parallel()

	svc := newUnitKeyService()

	if _, err := svc.Issue(context.Background(), IssueKeyRequest{UserID: "nope", ServerID: uuid.NewString()}); !errors.Is(err, ErrInvalidKeyInput) {
		t.Fatalf("expected ErrInvalidKeyInput for user id, got %v", err)
	}
	if _, err := svc.Issue(context.Background(), IssueKeyRequest{UserID: uuid.NewString(), ServerID: ""}); !errors.Is(err, ErrInvalidKeyInput) {
		t.Fatalf("expected ErrInvalidKeyInput for server id, got %v", err)
	}
}

func TestIssue_InactiveServer(t *testing.T) {
	t.Parallel()

	user := &model.User{ID: uuid.New(), TelegramID: 1}
	server := &model.VPNServer{ID: uuid.New(), Name: "dead", Kind: model.ServerKindOutline, Active: false}

	svc := newUnitKeyService()
	svc.userRepo = &fakeUserRepo{
		findByIDFn: func(context.Context, uuid.UUID) (*model.User, error) { return user, nil },
	}
	svc.serverRepo = &fakeServerRepo{
		findByIDFn: func(context.Context, uuid.UUID) (*model.VPNServer, error) { return server, nil },
	}

	_, err := svc.Issue(context.Background(), IssueKeyRequest{
		UserID:   user.ID.String(),
		ServerID: server.ID.String(),
	})
	if !errors.Is(err, ErrServerUnavailable) {
		t.Fatalf("expected ErrServerUnavailable, got %v", err)
	}
}

func TestIssue_NoDefaultPlan(t *testing.T) {
	t.Parallel()

	user := &model.User{ID: uuid.New(), TelegramID: 1}
	server := &model.VPNServer{ID: uuid.New(), Name: "ams-1", Kind: model.ServerKindOutline, Active: true}

	svc := newUnitKeyService()
	svc.userRepo = &fakeUserRepo{
		findByIDFn: func(context.Context, uuid.UUID) (*model.User, error) { return user, nil },
	}
	svc.serverRepo = &fakeServerRepo{
		findByIDFn: func(context.Context, uuid.UUID) (*model.VPNServer, error) { return server, nil },
	}
	svc.planRepo = &fakePlanRepo{}

	_, err := svc.Issue(context.Background(), IssueKeyRequest{
		UserID:   user.ID.String(),
		ServerID: server.ID.String(),
	})
	if !errors.Is(err, ErrNoDefaultPlan) {
		t.Fatalf("expected ErrNoDefaultPlan, got %v", err)
	}
}

func TestIssue_UnknownPlan(t *testing.T) {
	t.Parallel()

	user := &model.User{ID: uuid.New(), TelegramID: 1}
	server := &model.VPNServer{ID: uuid.New(), Name: "ams-1", Kind: model.ServerKindOutline, Active: true}
	planID := uuid.NewString()

	svc := newUnitKeyService()
	svc.userRepo = &fakeUserRepo{
		findByIDFn: func(context.Context, uuid.UUID) (*model.User, error) { return user, nil },
	}
	svc.serverRepo = &fakeServerRepo{
		findByIDFn: func(context.Context, uuid.UUID) (*model.VPNServer, error) { return server, nil },
	}
	svc.planRepo = &fakePlanRepo{}

	_, err := svc.Issue(context.Background(), IssueKeyRequest{
		UserID:   user.ID.String(),
		ServerID: server.ID.String(),
		PlanID:   &planID,
	})
	if !errors.Is(err, ErrPlanNotFound) {
		t.Fatalf("expected ErrPlanNotFound, got %v", err)
	}
}

func TestRenew_RejectsNonPositiveExtraDays(t *testing.T) {
	t.Parallel()

	svc := newUnitKeyService()
	zero := 0

	_, err := svc.Renew(context.Background(), uuid.NewString(), RenewKeyRequest{ExtraDays: &zero})
	if !errors.Is(err, ErrInvalidKeyInput) {
		t.Fatalf("expected ErrInvalidKeyInput, got %v", err)
	}
}
