package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// User is a subscriber identified by an immutable Telegram account id.
// Records are created on first contact and updated on every subsequent one.
type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	TelegramID   int64     `db:"telegram_id" json:"telegram_id"`
	Username     *string   `db:"username" json:"username,omitempty"`
	FirstName    *string   `db:"first_name" json:"first_name,omitempty"`
	PhoneNumber  *string   `db:"phone_number" json:"phone_number,omitempty"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	LastActivity time.Time `db:"last_activity" json:"last_activity"`
}

// DisplayName prefers the username and falls back to the Telegram id.
func (u *User) DisplayName() string {
	if u.Username != nil && *u.Username != "" {
		return *u.Username
	}
	return fmt.Sprintf("user-%d", u.TelegramID)
}
