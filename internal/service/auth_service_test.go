package service

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"vpnkey-hub/internal/model"
	"vpnkey-hub/internal/repository"
)

type fakeAdminRepo struct {
	accounts map[string]*model.AdminAccount
	created  []*model.AdminAccount
}

func (f *fakeAdminRepo) FindByUsername(_ context.Context, username string) (*model.AdminAccount, error) {
	if account, ok := f.accounts[username]; ok {
		return account, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeAdminRepo) Create(_ context.Context, account *model.AdminAccount) error {
	f.created = append(f.created, account)
	return nil
}

func newAuthFixture(t *testing.T) (*AuthService, *fakeAdminRepo) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	repo := &fakeAdminRepo{accounts: map[string]*model.AdminAccount{
		"admin": {Username: "admin", PasswordHash: string(hash)},
	}}
	return NewAuthService(repo, []byte("test-secret")), repo
}

func TestLogin_Success(t *testing.T) {
	t.Parallel()

	svc, _ := newAuthFixture(t)

	token, err := svc.Login(context.Background(), "admin", "correct-horse")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	claims, err := svc.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken returned error: %v", err)
	}
	if claims.Username != "admin" {
		t.Fatalf("expected username admin in claims, got %q", claims.Username)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	t.Parallel()

	svc, _ := newAuthFixture(t)

	if _, err := svc.Login(context.Background(), "admin", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLogin_UnknownAccount(t *testing.T) {
	t.Parallel()

	svc, _ := newAuthFixture(t)

	if _, err := svc.Login(context.Background(), "ghost", "correct-horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestParseToken_RejectsForeignSecret(t *testing.T) {
	t.Parallel()

	svc, repo := newAuthFixture(t)
	other := NewAuthService(repo, []byte("other-secret"))

	token, err := svc.Login(context.Background(), "admin", "correct-horse")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if _, err := other.ParseToken(token); err == nil {
		t.Fatal("expected a token signed with another secret to be rejected")
	}
}

func TestCreateAdmin(t *testing.T) {
	t.Parallel()

	svc, repo := newAuthFixture(t)

	if _, err := svc.CreateAdmin(context.Background(), "ops", "short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	if _, err := svc.CreateAdmin(context.Background(), "admin", "long-enough"); !errors.Is(err, ErrAdminExists) {
		t.Fatalf("expected ErrAdminExists, got %v", err)
	}

	account, err := svc.CreateAdmin(context.Background(), "ops", "long-enough")
	if err != nil {
		t.Fatalf("CreateAdmin returned error: %v", err)
	}
	if account.PasswordHash == "long-enough" {
		t.Fatal("password must be stored hashed")
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected one account created, got %d", len(repo.created))
	}
}
