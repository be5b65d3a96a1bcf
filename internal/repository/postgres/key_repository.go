package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vpnkey-hub/internal/model"
	"vpnkey-hub/internal/repository"
)

type keyRepository struct {
	pool *pgxpool.Pool
}

func NewKeyRepository(pool *pgxpool.Pool) repository.KeyRepository {
	return &keyRepository{pool: pool}
}

var _ repository.KeyRepository = (*keyRepository)(nil)

const keyColumns = `
	id,
	user_id,
	server_id,
	plan_id,
	name,
	remote_id,
	access_payload,
	expiration_date,
	traffic_limit,
	traffic_used,
	limit_exceeded,
	revoked_at,
	created_at,
	updated_at
`

func (r *keyRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.VPNKey, error) {
	query := `SELECT ` + keyColumns + ` FROM vpn_keys WHERE id = $1`
	key, err := scanKey(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return key, nil
}

func (r *keyRepository) List(ctx context.Context, filter repository.KeyListFilter) ([]*model.VPNKey, error) {
	limit, offset := normalizePagination(filter.Pagination)

	args := make([]any, 0, 5)
	conditions := make([]string, 0, 3)

	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.ServerID != nil {
		args = append(args, *filter.ServerID)
		conditions = append(conditions, fmt.Sprintf("server_id = $%d", len(args)))
	}
	if filter.Revoked != nil {
		if *filter.Revoked {
			conditions = append(conditions, "revoked_at IS NOT NULL")
		} else {
			conditions = append(conditions, "revoked_at IS NULL")
		}
	}

	var builder strings.Builder
	builder.WriteString("SELECT ")
	builder.WriteString(keyColumns)
	builder.WriteString(" FROM vpn_keys")
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}

	args = append(args, limit, offset)
	_, _ = fmt.Fprintf(&builder, " ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	return r.queryKeys(ctx, builder.String(), args...)
}

func (r *keyRepository) ListActive(ctx context.Context, userID uuid.UUID, now time.Time) ([]*model.VPNKey, error) {
	query := `
		SELECT ` + keyColumns + `
		  FROM vpn_keys
		 WHERE user_id = $1
		   AND revoked_at IS NULL
		   AND expiration_date > $2
		   AND NOT limit_exceeded
		 ORDER BY created_at DESC
	`
	return r.queryKeys(ctx, query, userID, now)
}

func (r *keyRepository) ListSyncable(ctx context.Context) ([]*model.VPNKey, error) {
	query := `
		SELECT ` + keyColumns + `
		  FROM vpn_keys
		 WHERE revoked_at IS NULL
		   AND remote_id IS NOT NULL
		 ORDER BY updated_at ASC
	`
	return r.queryKeys(ctx, query)
}

func (r *keyRepository) ListExpiredBefore(ctx context.Context, cutoff time.Time) ([]*model.VPNKey, error) {
	query := `
		SELECT ` + keyColumns + `
		  FROM vpn_keys
		 WHERE revoked_at IS NULL
		   AND expiration_date < $1
		 ORDER BY expiration_date ASC
	`
	return r.queryKeys(ctx, query, cutoff)
}

func (r *keyRepository) queryKeys(ctx context.Context, query string, args ...any) ([]*model.VPNKey, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]*model.VPNKey, 0, 16)
	for rows.Next() {
		item, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return keys, nil
}

func scanKey(src scanTarget) (*model.VPNKey, error) {
	key := &model.VPNKey{}
	err := src.Scan(
		&key.ID,
		&key.UserID,
		&key.ServerID,
		&key.PlanID,
		&key.Name,
		&key.RemoteID,
		&key.AccessPayload,
		&key.ExpirationDate,
		&key.TrafficLimit,
		&key.TrafficUsed,
		&key.LimitExceeded,
		&key.RevokedAt,
		&key.CreatedAt,
		&key.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return key, nil
}
