package model

import (
	"time"

	"github.com/google/uuid"
)

// VPNKey is one issued access credential. RemoteID is the opaque handle
// assigned by the remote provisioner and is immutable once set; AccessPayload
// is the client-side credential (access URL or rendered config) and is never
// exposed on list/read surfaces, only through config delivery.
//
// TrafficUsed is a cache of what the remote side reports; it only ever grows.
// LimitExceeded is monotonic too: it is cleared only by an explicit quota
// reset during renewal.
type VPNKey struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	UserID         uuid.UUID  `db:"user_id" json:"user_id"`
	ServerID       uuid.UUID  `db:"server_id" json:"server_id"`
	PlanID         *uuid.UUID `db:"plan_id" json:"plan_id,omitempty"`
	Name           string     `db:"name" json:"name"`
	RemoteID       *string    `db:"remote_id" json:"-"`
	AccessPayload  string     `db:"access_payload" json:"-"`
	ExpirationDate time.Time  `db:"expiration_date" json:"expiration_date"`
	TrafficLimit   int64      `db:"traffic_limit" json:"traffic_limit"`
	TrafficUsed    int64      `db:"traffic_used" json:"traffic_used"`
	LimitExceeded  bool       `db:"limit_exceeded" json:"limit_exceeded"`
	RevokedAt      *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

func (k *VPNKey) IsRevoked() bool {
	return k.RevokedAt != nil
}

func (k *VPNKey) IsExpired(now time.Time) bool {
	return now.After(k.ExpirationDate)
}

// IsActive reports whether the key is usable at the given instant: not
// revoked, not expired and not over quota.
func (k *VPNKey) IsActive(now time.Time) bool {
	return !k.IsRevoked() && !k.IsExpired(now) && !k.LimitExceeded
}
