package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"vpnkey-hub/internal/model"
)

var ErrNotFound = errors.New("record not found")

type Pagination struct {
	Limit  int32 `json:"limit"`
	Offset int32 `json:"offset"`
}

type UserListFilter struct {
	IsActive   *bool      `json:"is_active,omitempty"`
	Keyword    *string    `json:"keyword,omitempty"`
	Pagination Pagination `json:"pagination"`
}

type KeyListFilter struct {
	UserID     *uuid.UUID `json:"user_id,omitempty"`
	ServerID   *uuid.UUID `json:"server_id,omitempty"`
	Revoked    *bool      `json:"revoked,omitempty"`
	Pagination Pagination `json:"pagination"`
}

type UserUpsert struct {
	TelegramID  int64
	Username    *string
	FirstName   *string
	PhoneNumber *string
}

type UserRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
	// Upsert creates the subscriber on first contact and refreshes profile
	// fields plus last_activity on every later one.
	Upsert(ctx context.Context, in UserUpsert) (*model.User, error)
	List(ctx context.Context, filter UserListFilter) ([]*model.User, error)
	Count(ctx context.Context, filter UserListFilter) (int64, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

type PlanRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.SubscriptionPlan, error)
	FindDefault(ctx context.Context) (*model.SubscriptionPlan, error)
	Create(ctx context.Context, plan *model.SubscriptionPlan) error
	Update(ctx context.Context, plan *model.SubscriptionPlan) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]*model.SubscriptionPlan, error)
}

type ServerRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.VPNServer, error)
	Create(ctx context.Context, server *model.VPNServer) error
	Update(ctx context.Context, server *model.VPNServer) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, onlyActive bool) ([]*model.VPNServer, error)

	ListCountries(ctx context.Context) ([]*model.Country, error)
	CreateCountry(ctx context.Context, country *model.Country) error
	DeleteCountry(ctx context.Context, id uuid.UUID) error
	ListCities(ctx context.Context, countryID *uuid.UUID) ([]*model.City, error)
	CreateCity(ctx context.Context, city *model.City) error
	DeleteCity(ctx context.Context, id uuid.UUID) error
}

type KeyRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.VPNKey, error)
	List(ctx context.Context, filter KeyListFilter) ([]*model.VPNKey, error)
	// ListActive returns keys that are unrevoked, unexpired and under quota
	// for the given subscriber.
	ListActive(ctx context.Context, userID uuid.UUID, now time.Time) ([]*model.VPNKey, error)
	// ListSyncable returns unrevoked keys with a remote handle, for the
	// periodic usage sweep.
	ListSyncable(ctx context.Context) ([]*model.VPNKey, error)
	// ListExpiredBefore returns unrevoked keys whose expiration passed before
	// the cutoff.
	ListExpiredBefore(ctx context.Context, cutoff time.Time) ([]*model.VPNKey, error)
}

type AdminRepository interface {
	FindByUsername(ctx context.Context, username string) (*model.AdminAccount, error)
	Create(ctx context.Context, account *model.AdminAccount) error
}
