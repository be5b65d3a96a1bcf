package model

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionPlan is a billing tier. TrafficLimitGB of zero means unlimited
// traffic; quota enforcement is skipped for keys issued under such a plan.
type SubscriptionPlan struct {
	ID             uuid.UUID `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	PriceCents     int64     `db:"price_cents" json:"price_cents"`
	DurationDays   int       `db:"duration_days" json:"duration_days"`
	TrafficLimitGB int64     `db:"traffic_limit_gb" json:"traffic_limit_gb"`
	MaxDevices     int       `db:"max_devices" json:"max_devices"`
	IsDefault      bool      `db:"is_default" json:"is_default"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
