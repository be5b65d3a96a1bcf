package model

import (
	"time"

	"github.com/google/uuid"
)

type Country struct {
	ID   uuid.UUID `db:"id" json:"id"`
	Name string    `db:"name" json:"name"`
}

type City struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CountryID uuid.UUID `db:"country_id" json:"country_id"`
}

type ServerKind string

const (
	// ServerKindOutline is a server driven through the Outline management API.
	ServerKindOutline ServerKind = "outline"
	// ServerKindWireGuard is a self-managed server: keys are generated locally
	// and there is no remote control plane to call.
	ServerKindWireGuard ServerKind = "wireguard"
)

// VPNServer is a provisioning endpoint. For Outline servers APIURL and
// CertSHA256 address the management API; for WireGuard servers APIURL holds the
// public endpoint (host:port) and APIKey the server public key.
type VPNServer struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	Name       string     `db:"name" json:"name"`
	CityID     *uuid.UUID `db:"city_id" json:"city_id,omitempty"`
	Location   string     `db:"location" json:"location"`
	Kind       ServerKind `db:"kind" json:"kind"`
	APIURL     string     `db:"api_url" json:"-"`
	APIKey     string     `db:"api_key" json:"-"`
	CertSHA256 string     `db:"cert_sha256" json:"-"`
	Active     bool       `db:"active" json:"active"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}
