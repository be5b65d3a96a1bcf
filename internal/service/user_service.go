package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vpnkey-hub/internal/model"
	"vpnkey-hub/internal/repository"
)

var ErrInvalidUserInput = errors.New("invalid user input")

type ContactRequest struct {
	TelegramID  int64   `json:"telegram_id"`
	Username    *string `json:"username,omitempty"`
	FirstName   *string `json:"first_name,omitempty"`
	PhoneNumber *string `json:"phone_number,omitempty"`
}

type UserService struct {
	userRepo repository.UserRepository
	keyRepo  repository.KeyRepository
	logger   *zap.Logger
	nowFn    func() time.Time
}

func NewUserService(userRepo repository.UserRepository, keyRepo repository.KeyRepository, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &UserService{
		userRepo: userRepo,
		keyRepo:  keyRepo,
		logger:   logger,
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

// RegisterContact upserts a subscriber by Telegram id: first contact creates
// the record, every later one refreshes profile fields and last_activity.
func (s *UserService) RegisterContact(ctx context.Context, req ContactRequest) (*model.User, error) {
	if req.TelegramID <= 0 {
		return nil, ErrInvalidUserInput
	}

	user, err := s.userRepo.Upsert(ctx, repository.UserUpsert{
		TelegramID:  req.TelegramID,
		Username:    trimPtr(req.Username),
		FirstName:   trimPtr(req.FirstName),
		PhoneNumber: trimPtr(req.PhoneNumber),
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (s *UserService) Get(ctx context.Context, userID string) (*model.User, error) {
	id, err := uuid.Parse(strings.TrimSpace(userID))
	if err != nil {
		return nil, ErrInvalidUserInput
	}

	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *UserService) GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	user, err := s.userRepo.FindByTelegramID(ctx, telegramID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context, filter repository.UserListFilter) ([]*model.User, int64, error) {
	users, err := s.userRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.userRepo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	return users, total, nil
}

// Keys lists every key ever issued to the subscriber.
func (s *UserService) Keys(ctx context.Context, userID string, page repository.Pagination) ([]*model.VPNKey, error) {
	id, err := uuid.Parse(strings.TrimSpace(userID))
	if err != nil {
		return nil, ErrInvalidUserInput
	}

	return s.keyRepo.List(ctx, repository.KeyListFilter{
		UserID:     &id,
		Pagination: page,
	})
}

// ActiveKeys lists the subscriber's keys that are unrevoked, unexpired and
// under quota.
func (s *UserService) ActiveKeys(ctx context.Context, userID string) ([]*model.VPNKey, error) {
	id, err := uuid.Parse(strings.TrimSpace(userID))
	if err != nil {
		return nil, ErrInvalidUserInput
	}

	return s.keyRepo.ListActive(ctx, id, s.nowFn())
}

func trimPtr(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
