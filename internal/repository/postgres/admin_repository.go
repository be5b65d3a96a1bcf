package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vpnkey-hub/internal/model"
	"vpnkey-hub/internal/repository"
)

type adminRepository struct {
	pool *pgxpool.Pool
}

func NewAdminRepository(pool *pgxpool.Pool) repository.AdminRepository {
	return &adminRepository{pool: pool}
}

var _ repository.AdminRepository = (*adminRepository)(nil)

func (r *adminRepository) FindByUsername(ctx context.Context, username string) (*model.AdminAccount, error) {
	account := &model.AdminAccount{}
	err := r.pool.QueryRow(
		ctx,
		`SELECT id, username, password_hash, created_at FROM admin_accounts WHERE username = $1`,
		username,
	).Scan(&account.ID, &account.Username, &account.PasswordHash, &account.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (r *adminRepository) Create(ctx context.Context, account *model.AdminAccount) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO admin_accounts (id, username, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		account.ID,
		account.Username,
		account.PasswordHash,
		account.CreatedAt,
	)
	return err
}
