package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	testcontainers "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"vpnkey-hub/internal/model"
	"vpnkey-hub/internal/provisioner"
	"vpnkey-hub/internal/repository"
	"vpnkey-hub/internal/repository/postgres"
)

type lifecycleEnv struct {
	pool       *pgxpool.Pool
	users      repository.UserRepository
	servers    repository.ServerRepository
	plans      repository.PlanRepository
	keys       repository.KeyRepository
	remote     *fakeProvisionerClient
	keyService *KeyService
	traffic    *TrafficService

	user   *model.User
	server *model.VPNServer
	plan   *model.SubscriptionPlan
}

func newLifecycleEnv(t *testing.T) *lifecycleEnv {
	t.Helper()

	pool := startServicePostgres(t)
	ctx := context.Background()

	env := &lifecycleEnv{
		pool:    pool,
		users:   postgres.NewUserRepository(pool),
		servers: postgres.NewServerRepository(pool),
		plans:   postgres.NewPlanRepository(pool),
		keys:    postgres.NewKeyRepository(pool),
		remote:  &fakeProvisionerClient{},
	}
	factory := &fakeProvisionerFactory{client: env.remote}

	env.keyService = NewKeyService(pool, env.users, env.servers, env.plans, env.keys, factory, nil, zap.NewNop())
	env.traffic = NewTrafficService(pool, env.keys, env.users, env.servers, factory, nil, nil, zap.NewNop())

	user, err := env.users.Upsert(ctx, repository.UserUpsert{TelegramID: 90001})
	if err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	env.user = user

	env.server = &model.VPNServer{
		Name:   "test-outline",
		Kind:   model.ServerKindOutline,
		APIURL: "https://host:1234/secret",
		Active: true,
	}
	if err := env.servers.Create(ctx, env.server); err != nil {
		t.Fatalf("create server: %v", err)
	}

	env.plan = &model.SubscriptionPlan{
		Name:           "monthly",
		DurationDays:   30,
		TrafficLimitGB: 1,
		MaxDevices:     2,
		IsDefault:      true,
	}
	if err := env.plans.Create(ctx, env.plan); err != nil {
		t.Fatalf("create plan: %v", err)
	}

	return env
}

func (e *lifecycleEnv) issue(t *testing.T, name string) *model.VPNKey {
	t.Helper()

	key, err := e.keyService.Issue(context.Background(), IssueKeyRequest{
		UserID:   e.user.ID.String(),
		ServerID: e.server.ID.String(),
		Name:     name,
	})
	if err != nil {
		t.Fatalf("issue key: %v", err)
	}
	return key
}

func (e *lifecycleEnv) countKeys(t *testing.T) int {
	t.Helper()

	var n int
	if err := e.pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM vpn_keys`).Scan(&n); err != nil {
		t.Fatalf("count keys: %v", err)
	}
	return n
}

func TestKeyLifecycle_IssueCommitsAfterRemoteCreate(t *testing.T) {
	env := newLifecycleEnv(t)

	var remoteName string
	env.remote.createKeyFn = func(_ context.Context, name string) (*provisioner.RemoteKey, error) {
		remoteName = name
		return &provisioner.RemoteKey{ID: "r-1", Name: name, AccessURL: "ss://issued"}, nil
	}
	var limitSet int64
	env.remote.setDataLimitFn = func(_ context.Context, _ string, limitBytes int64) error {
		limitSet = limitBytes
		return nil
	}

	key := env.issue(t, "laptop")

	if key.RemoteID == nil || *key.RemoteID != "r-1" {
		t.Fatalf("expected remote id r-1, got %v", key.RemoteID)
	}
	if key.AccessPayload != "ss://issued" {
		t.Fatalf("unexpected access payload %q", key.AccessPayload)
	}
	if key.TrafficLimit != 1<<30 {
		t.Fatalf("expected 1 GiB limit, got %d", key.TrafficLimit)
	}
	if limitSet != 1<<30 {
		t.Fatalf("expected remote data limit 1 GiB, got %d", limitSet)
	}
	if !strings.Contains(remoteName, "laptop") {
		t.Fatalf("remote key name should carry the label, got %q", remoteName)
	}

	wantExpiry := time.Now().UTC().Add(30 * 24 * time.Hour)
	if diff := key.ExpirationDate.Sub(wantExpiry); diff > time.Minute || diff < -time.Minute {
		t.Fatalf("expected expiry near %s, got %s", wantExpiry, key.ExpirationDate)
	}
}

func TestKeyLifecycle_RemoteCreateFailureLeavesNoRecord(t *testing.T) {
	env := newLifecycleEnv(t)

	env.remote.createKeyFn = func(context.Context, string) (*provisioner.RemoteKey, error) {
		return nil, &provisioner.Error{Kind: provisioner.KindUnreachable, Op: "create_key", Err: errors.New("timeout")}
	}

	_, err := env.keyService.Issue(context.Background(), IssueKeyRequest{
		UserID:   env.user.ID.String(),
		ServerID: env.server.ID.String(),
	})
	if !provisioner.IsKind(err, provisioner.KindUnreachable) {
		t.Fatalf("expected the remote failure surfaced, got %v", err)
	}
	if n := env.countKeys(t); n != 0 {
		t.Fatalf("expected no local record after remote failure, found %d", n)
	}
}

func TestKeyLifecycle_RemoteLimitFailureRollsBack(t *testing.T) {
	env := newLifecycleEnv(t)

	deleted := make(chan string, 1)
	env.remote.setDataLimitFn = func(context.Context, string, int64) error {
		return &provisioner.Error{Kind: provisioner.KindInternal, Op: "set_data_limit", Err: errors.New("boom")}
	}
	env.remote.deleteKeyFn = func(_ context.Context, id string) error {
		deleted <- id
		return nil
	}

	_, err := env.keyService.Issue(context.Background(), IssueKeyRequest{
		UserID:   env.user.ID.String(),
		ServerID: env.server.ID.String(),
	})
	if err == nil {
		t.Fatal("expected the issue to fail")
	}
	if n := env.countKeys(t); n != 0 {
		t.Fatalf("expected no local record, found %d", n)
	}

	select {
	case <-deleted:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a best-effort remote cleanup")
	}
}

func TestKeyLifecycle_DeviceLimit(t *testing.T) {
	env := newLifecycleEnv(t)

	env.issue(t, "one")
	env.issue(t, "two")

	_, err := env.keyService.Issue(context.Background(), IssueKeyRequest{
		UserID:   env.user.ID.String(),
		ServerID: env.server.ID.String(),
		Name:     "three",
	})
	if !errors.Is(err, ErrDeviceLimitReached) {
		t.Fatalf("expected ErrDeviceLimitReached, got %v", err)
	}
}

func TestKeyLifecycle_RevokeIsIdempotent(t *testing.T) {
	env := newLifecycleEnv(t)
	ctx := context.Background()

	key := env.issue(t, "laptop")

	deletes := 0
	env.remote.deleteKeyFn = func(_ context.Context, id string) error {
		deletes++
		// The remote already lost the key; that still counts as revoked.
		return &provisioner.Error{Kind: provisioner.KindNotFound, Op: "delete_key", Err: errors.New("gone")}
	}

	if err := env.keyService.Revoke(ctx, key.ID.String()); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := env.keyService.Revoke(ctx, key.ID.String()); err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if deletes != 1 {
		t.Fatalf("expected exactly one remote delete attempt, got %d", deletes)
	}

	got, err := env.keys.FindByID(ctx, key.ID)
	if err != nil {
		t.Fatalf("find key: %v", err)
	}
	if !got.IsRevoked() {
		t.Fatal("expected the key to be revoked")
	}
}

func TestKeyLifecycle_RevokeKeepsRecordOnRetryableFailure(t *testing.T) {
	env := newLifecycleEnv(t)
	ctx := context.Background()

	key := env.issue(t, "laptop")

	env.remote.deleteKeyFn = func(context.Context, string) error {
		return &provisioner.Error{Kind: provisioner.KindUnreachable, Op: "delete_key", Err: errors.New("timeout")}
	}

	err := env.keyService.Revoke(ctx, key.ID.String())
	if !provisioner.IsKind(err, provisioner.KindUnreachable) {
		t.Fatalf("expected the remote failure surfaced, got %v", err)
	}

	got, err := env.keys.FindByID(ctx, key.ID)
	if err != nil {
		t.Fatalf("find key: %v", err)
	}
	if got.IsRevoked() {
		t.Fatal("record must stay unrevoked so the delete can be retried")
	}

	env.remote.deleteKeyFn = nil
	if err := env.keyService.Revoke(ctx, key.ID.String()); err != nil {
		t.Fatalf("retried revoke: %v", err)
	}
}

func TestKeyLifecycle_RenewExtendsAndResetsQuota(t *testing.T) {
	env := newLifecycleEnv(t)
	ctx := context.Background()

	key := env.issue(t, "laptop")
	originalExpiry := key.ExpirationDate

	ten := 10
	renewed, err := env.keyService.Renew(ctx, key.ID.String(), RenewKeyRequest{ExtraDays: &ten})
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	want := originalExpiry.Add(10 * 24 * time.Hour)
	if diff := renewed.ExpirationDate.Sub(want); diff > time.Second || diff < -time.Second {
		t.Fatalf("expected expiry %s, got %s", want, renewed.ExpirationDate)
	}

	// Drive the key over quota, then renew with a quota reset.
	env.remote.usageFn = func(context.Context, string) (int64, error) { return 2 << 30, nil }
	res, err := env.traffic.SyncUsage(ctx, key.ID.String())
	if err != nil {
		t.Fatalf("sync usage: %v", err)
	}
	if !res.Exceeded || !res.NewlyExceeded {
		t.Fatalf("expected the quota to trip, got %+v", res)
	}

	renewed, err = env.keyService.Renew(ctx, key.ID.String(), RenewKeyRequest{ResetQuota: true})
	if err != nil {
		t.Fatalf("renew with reset: %v", err)
	}
	if renewed.TrafficUsed != 0 || renewed.LimitExceeded {
		t.Fatalf("expected a fresh quota period, got used=%d exceeded=%v", renewed.TrafficUsed, renewed.LimitExceeded)
	}
}

func TestKeyLifecycle_RenewRevokedKeyFails(t *testing.T) {
	env := newLifecycleEnv(t)
	ctx := context.Background()

	key := env.issue(t, "laptop")
	if err := env.keyService.Revoke(ctx, key.ID.String()); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	ten := 10
	if _, err := env.keyService.Renew(ctx, key.ID.String(), RenewKeyRequest{ExtraDays: &ten}); !errors.Is(err, ErrKeyRevoked) {
		t.Fatalf("expected ErrKeyRevoked, got %v", err)
	}
}

func TestKeyLifecycle_UsageIsMonotonic(t *testing.T) {
	env := newLifecycleEnv(t)
	ctx := context.Background()

	key := env.issue(t, "laptop")

	env.remote.usageFn = func(context.Context, string) (int64, error) { return 500 << 20, nil }
	res, err := env.traffic.SyncUsage(ctx, key.ID.String())
	if err != nil {
		t.Fatalf("sync usage: %v", err)
	}
	if res.UsedBytes != 500<<20 || res.Exceeded {
		t.Fatalf("unexpected result: %+v", res)
	}

	// A remote restart reports less; the stored value wins.
	env.remote.usageFn = func(context.Context, string) (int64, error) { return 100 << 20, nil }
	res, err = env.traffic.SyncUsage(ctx, key.ID.String())
	if err != nil {
		t.Fatalf("sync usage after regression: %v", err)
	}
	if !res.Regressed {
		t.Fatal("expected the regression flagged")
	}
	if res.UsedBytes != 500<<20 {
		t.Fatalf("expected the stored counter kept, got %d", res.UsedBytes)
	}

	// Crossing the limit trips the flag exactly once.
	env.remote.usageFn = func(context.Context, string) (int64, error) { return 1 << 30, nil }
	res, err = env.traffic.SyncUsage(ctx, key.ID.String())
	if err != nil {
		t.Fatalf("sync usage at limit: %v", err)
	}
	if !res.Exceeded || !res.NewlyExceeded {
		t.Fatalf("expected the limit to trip, got %+v", res)
	}

	res, err = env.traffic.SyncUsage(ctx, key.ID.String())
	if err != nil {
		t.Fatalf("sync usage after trip: %v", err)
	}
	if !res.Exceeded || res.NewlyExceeded {
		t.Fatalf("expected the trip reported once, got %+v", res)
	}

	if _, err := env.keyService.DeliverConfig(ctx, key.ID.String()); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected delivery denied over quota, got %v", err)
	}
}

func TestKeyLifecycle_RevokeExpiredSweep(t *testing.T) {
	env := newLifecycleEnv(t)
	ctx := context.Background()

	live := env.issue(t, "live")
	lapsed := env.issue(t, "lapsed")

	// Age one key past the grace window.
	_, err := env.pool.Exec(
		ctx,
		`UPDATE vpn_keys SET expiration_date = NOW() - INTERVAL '1 hour' WHERE id = $1`,
		lapsed.ID,
	)
	if err != nil {
		t.Fatalf("age key: %v", err)
	}

	revoked, err := env.keyService.RevokeExpired(ctx, 10*time.Minute)
	if err != nil {
		t.Fatalf("revoke expired: %v", err)
	}
	if revoked != 1 {
		t.Fatalf("expected 1 key revoked, got %d", revoked)
	}

	gotLapsed, err := env.keys.FindByID(ctx, lapsed.ID)
	if err != nil {
		t.Fatalf("find lapsed key: %v", err)
	}
	if !gotLapsed.IsRevoked() {
		t.Fatal("expected the lapsed key revoked")
	}

	gotLive, err := env.keys.FindByID(ctx, live.ID)
	if err != nil {
		t.Fatalf("find live key: %v", err)
	}
	if gotLive.IsRevoked() {
		t.Fatal("the live key must survive the sweep")
	}
}

func startServicePostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "postgres",
				"POSTGRES_DB":       "vpnhub_test",
			},
			WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("skipping test because docker/testcontainers is unavailable: %v", err)
	}

	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("container mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://postgres:postgres@%s:%s/vpnhub_test?sslmode=disable", host, port.Port())
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("create pgx pool: %v", err)
	}
	t.Cleanup(pool.Close)

	deadline := time.Now().Add(30 * time.Second)
	for {
		err = pool.Ping(ctx)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("postgres did not become ready: %v", err)
		}
		time.Sleep(500 * time.Millisecond)
	}

	applyServiceMigrations(t, ctx, pool)
	return pool
}

func applyServiceMigrations(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()

	migrationsDir := filepath.Join(findServiceRepoRoot(t), "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	for _, file := range files {
		// #nosec G304 -- migration file list comes from controlled test directory.
		raw, err := os.ReadFile(filepath.Join(migrationsDir, file))
		if err != nil {
			t.Fatalf("read migration %s: %v", file, err)
		}
		if strings.TrimSpace(string(raw)) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, string(raw)); err != nil {
			t.Fatalf("apply migration %s: %v", file, err)
		}
	}
}

func findServiceRepoRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not locate repository root")
		}
		dir = parent
	}
}
