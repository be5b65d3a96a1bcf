package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"vpnkey-hub/internal/model"
	"vpnkey-hub/internal/repository"
	jwtutil "vpnkey-hub/pkg/jwt"
)

const (
	defaultAccessTokenTTL = 12 * time.Hour
	minPasswordLength     = 8
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrWeakPassword       = errors.New("password is too short")
	ErrAdminExists        = errors.New("admin account already exists")
)

// AuthService authenticates operator accounts for the admin API.
type AuthService struct {
	adminRepo repository.AdminRepository
	secret    []byte
	accessTTL time.Duration
}

func NewAuthService(adminRepo repository.AdminRepository, secret []byte) *AuthService {
	return &AuthService{
		adminRepo: adminRepo,
		secret:    secret,
		accessTTL: defaultAccessTokenTTL,
	}
}

func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("jwt secret is not configured")
	}

	admin, err := s.adminRepo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Burn a comparison so a missing account costs the same as a
			// wrong password.
			_ = bcrypt.CompareHashAndPassword(
				[]byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5B0q0lC1q1rS3F5eXH0a1bO9e7rEa"),
				[]byte(password),
			)
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}

	claims := jwtutil.NewClaims(admin.ID.String(), admin.Username, s.accessTTL)
	return jwtutil.GenerateAccessToken(claims, s.secret)
}

func (s *AuthService) ParseToken(tokenStr string) (*jwtutil.Claims, error) {
	return jwtutil.ParseAccessToken(tokenStr, s.secret)
}

// CreateAdmin provisions an operator account. Used by the create-admin
// bootstrap command.
func (s *AuthService) CreateAdmin(ctx context.Context, username, password string) (*model.AdminAccount, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrInvalidCredentials
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	if _, err := s.adminRepo.FindByUsername(ctx, username); err == nil {
		return nil, ErrAdminExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	admin := &model.AdminAccount{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: string(hash),
	}
	if err := s.adminRepo.Create(ctx, admin); err != nil {
		return nil, err
	}
	return admin, nil
}
