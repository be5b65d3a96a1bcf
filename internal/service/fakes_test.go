package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"vpnkey-hub/internal/model"
	"vpnkey-hub/internal/provisioner"
	"vpnkey-hub/internal/repository"
)

type fakeKeyRepo struct {
	findByIDFn          func(ctx context.Context, id uuid.UUID) (*model.VPNKey, error)
	listFn              func(ctx context.Context, filter repository.KeyListFilter) ([]*model.VPNKey, error)
	listActiveFn        func(ctx context.Context, userID uuid.UUID, now time.Time) ([]*model.VPNKey, error)
	listSyncableFn      func(ctx context.Context) ([]*model.VPNKey, error)
	listExpiredBeforeFn func(ctx context.Context, cutoff time.Time) ([]*model.VPNKey, error)
}

func (f *fakeKeyRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.VPNKey, error) {
	if f.findByIDFn != nil {
		return f.findByIDFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (f *fakeKeyRepo) List(ctx context.Context, filter repository.KeyListFilter) ([]*model.VPNKey, error) {
	if f.listFn != nil {
		return f.listFn(ctx, filter)
	}
	return nil, nil
}

func (f *fakeKeyRepo) ListActive(ctx context.Context, userID uuid.UUID, now time.Time) ([]*model.VPNKey, error) {
	if f.listActiveFn != nil {
		return f.listActiveFn(ctx, userID, now)
	}
	return nil, nil
}

func (f *fakeKeyRepo) ListSyncable(ctx context.Context) ([]*model.VPNKey, error) {
	if f.listSyncableFn != nil {
		return f.listSyncableFn(ctx)
	}
	return nil, nil
}

func (f *fakeKeyRepo) ListExpiredBefore(ctx context.Context, cutoff time.Time) ([]*model.VPNKey, error) {
	if f.listExpiredBeforeFn != nil {
		return f.listExpiredBeforeFn(ctx, cutoff)
	}
	return nil, nil
}

type fakeUserRepo struct {
	findByIDFn func(ctx context.Context, id uuid.UUID) (*model.User, error)
}

func (f *fakeUserRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	if f.findByIDFn != nil {
		return f.findByIDFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserRepo) FindByTelegramID(context.Context, int64) (*model.User, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeUserRepo) Upsert(context.Context, repository.UserUpsert) (*model.User, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeUserRepo) List(context.Context, repository.UserListFilter) ([]*model.User, error) {
	return nil, nil
}

func (f *fakeUserRepo) Count(context.Context, repository.UserListFilter) (int64, error) {
	return 0, nil
}

func (f *fakeUserRepo) SetActive(context.Context, uuid.UUID, bool) error {
	return nil
}

type fakeServerRepo struct {
	findByIDFn func(ctx context.Context, id uuid.UUID) (*model.VPNServer, error)
}

func (f *fakeServerRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.VPNServer, error) {
	if f.findByIDFn != nil {
		return f.findByIDFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (f *fakeServerRepo) Create(context.Context, *model.VPNServer) error               { return nil }
func (f *fakeServerRepo) Update(context.Context, *model.VPNServer) error               { return nil }
func (f *fakeServerRepo) SetActive(context.Context, uuid.UUID, bool) error             { return nil }
func (f *fakeServerRepo) Delete(context.Context, uuid.UUID) error                      { return nil }
func (f *fakeServerRepo) List(context.Context, bool) ([]*model.VPNServer, error)       { return nil, nil }
func (f *fakeServerRepo) ListCountries(context.Context) ([]*model.Country, error)      { return nil, nil }
func (f *fakeServerRepo) CreateCountry(context.Context, *model.Country) error          { return nil }
func (f *fakeServerRepo) DeleteCountry(context.Context, uuid.UUID) error               { return nil }
func (f *fakeServerRepo) CreateCity(context.Context, *model.City) error                { return nil }
func (f *fakeServerRepo) DeleteCity(context.Context, uuid.UUID) error                  { return nil }
func (f *fakeServerRepo) ListCities(context.Context, *uuid.UUID) ([]*model.City, error) {
	return nil, nil
}

type fakePlanRepo struct {
	findByIDFn    func(ctx context.Context, id uuid.UUID) (*model.SubscriptionPlan, error)
	findDefaultFn func(ctx context.Context) (*model.SubscriptionPlan, error)
}

func (f *fakePlanRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.SubscriptionPlan, error) {
	if f.findByIDFn != nil {
		return f.findByIDFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (f *fakePlanRepo) FindDefault(ctx context.Context) (*model.SubscriptionPlan, error) {
	if f.findDefaultFn != nil {
		return f.findDefaultFn(ctx)
	}
	return nil, repository.ErrNotFound
}

func (f *fakePlanRepo) Create(context.Context, *model.SubscriptionPlan) error { return nil }
func (f *fakePlanRepo) Update(context.Context, *model.SubscriptionPlan) error { return nil }
func (f *fakePlanRepo) Delete(context.Context, uuid.UUID) error               { return nil }
func (f *fakePlanRepo) List(context.Context) ([]*model.SubscriptionPlan, error) {
	return nil, nil
}

type fakeProvisionerClient struct {
	createKeyFn       func(ctx context.Context, name string) (*provisioner.RemoteKey, error)
	deleteKeyFn       func(ctx context.Context, id string) error
	setDataLimitFn    func(ctx context.Context, id string, limitBytes int64) error
	removeDataLimitFn func(ctx context.Context, id string) error
	usageFn           func(ctx context.Context, id string) (int64, error)
}

func (f *fakeProvisionerClient) CreateKey(ctx context.Context, name string) (*provisioner.RemoteKey, error) {
	if f.createKeyFn != nil {
		return f.createKeyFn(ctx, name)
	}
	return &provisioner.RemoteKey{ID: uuid.NewString(), Name: name, AccessURL: "ss://test"}, nil
}

func (f *fakeProvisionerClient) DeleteKey(ctx context.Context, id string) error {
	if f.deleteKeyFn != nil {
		return f.deleteKeyFn(ctx, id)
	}
	return nil
}

func (f *fakeProvisionerClient) RenameKey(context.Context, string, string) error { return nil }

func (f *fakeProvisionerClient) SetDataLimit(ctx context.Context, id string, limitBytes int64) error {
	if f.setDataLimitFn != nil {
		return f.setDataLimitFn(ctx, id, limitBytes)
	}
	return nil
}

func (f *fakeProvisionerClient) RemoveDataLimit(ctx context.Context, id string) error {
	if f.removeDataLimitFn != nil {
		return f.removeDataLimitFn(ctx, id)
	}
	return nil
}

func (f *fakeProvisionerClient) Usage(ctx context.Context, id string) (int64, error) {
	if f.usageFn != nil {
		return f.usageFn(ctx, id)
	}
	return 0, nil
}

func (f *fakeProvisionerClient) ServerInfo(context.Context) (*provisioner.ServerInfo, error) {
	return &provisioner.ServerInfo{Name: "fake"}, nil
}

type fakeProvisionerFactory struct {
	client provisioner.Client
	err    error
}

func (f *fakeProvisionerFactory) ClientFor(*model.VPNServer) (provisioner.Client, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.client, nil
}
