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

type planRepository struct {
	pool *pgxpool.Pool
}

func NewPlanRepository(pool *pgxpool.Pool) repository.PlanRepository {
	return &planRepository{pool: pool}
}

var _ repository.PlanRepository = (*planRepository)(nil)

const planColumns = `
	id,
	name,
	price_cents,
	duration_days,
	traffic_limit_gb,
	max_devices,
	is_default,
	created_at
`

func (r *planRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.SubscriptionPlan, error) {
	query := `SELECT ` + planColumns + ` FROM subscription_plans WHERE id = $1`
	plan, err := scanPlan(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (r *planRepository) FindDefault(ctx context.Context) (*model.SubscriptionPlan, error) {
	query := `SELECT ` + planColumns + ` FROM subscription_plans WHERE is_default ORDER BY created_at ASC LIMIT 1`
	plan, err := scanPlan(r.pool.QueryRow(ctx, query))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (r *planRepository) Create(ctx context.Context, plan *model.SubscriptionPlan) error {
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO subscription_plans (
			id, name, price_cents, duration_days, traffic_limit_gb,
			max_devices, is_default, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(
		ctx,
		query,
		plan.ID,
		plan.Name,
		plan.PriceCents,
		plan.DurationDays,
		plan.TrafficLimitGB,
		plan.MaxDevices,
		plan.IsDefault,
		plan.CreatedAt,
	)
	return err
}

func (r *planRepository) Update(ctx context.Context, plan *model.SubscriptionPlan) error {
	query := `
		UPDATE subscription_plans
		SET name = $2,
			price_cents = $3,
			duration_days = $4,
			traffic_limit_gb = $5,
			max_devices = $6,
			is_default = $7
		WHERE id = $1
	`

	tag, err := r.pool.Exec(
		ctx,
		query,
		plan.ID,
		plan.Name,
		plan.PriceCents,
		plan.DurationDays,
		plan.TrafficLimitGB,
		plan.MaxDevices,
		plan.IsDefault,
	)
	if err != nil {
		return err
	}
	return ensureAffected(tag)
}

func (r *planRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM subscription_plans WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return ensureAffected(tag)
}

func (r *planRepository) List(ctx context.Context) ([]*model.SubscriptionPlan, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+planColumns+` FROM subscription_plans ORDER BY price_cents ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	plans := make([]*model.SubscriptionPlan, 0, 8)
	for rows.Next() {
		item, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return plans, nil
}

func scanPlan(src scanTarget) (*model.SubscriptionPlan, error) {
	plan := &model.SubscriptionPlan{}
	err := src.Scan(
		&plan.ID,
		&plan.Name,
		&plan.PriceCents,
		&plan.DurationDays,
		&plan.TrafficLimitGB,
		&plan.MaxDevices,
		&plan.IsDefault,
		&plan.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return plan, nil
}
