package provisioner

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/curve25519"
)

// WireGuardProvisioner serves self-managed servers: there is no control plane
// to call, so key material is generated locally and every mutation trivially
// succeeds. Usage always fails with KindNotFound because nothing reports it.
type WireGuardProvisioner struct {
	endpoint        string
	serverPublicKey string
	dns             string
}

func NewWireGuardProvisioner(endpoint, serverPublicKey string) (*WireGuardProvisioner, error) {
	endpoint = strings.TrimSpace(endpoint)
	serverPublicKey = strings.TrimSpace(serverPublicKey)
	if endpoint == "" {
		return nil, errors.New("wireguard endpoint is empty")
	}
	if serverPublicKey == "" {
		return nil, errors.New("wireguard server public key is empty")
	}

	return &WireGuardProvisioner{
		endpoint:        endpoint,
		serverPublicKey: serverPublicKey,
		dns:             "8.8.8.8, 1.1.1.1",
	}, nil
}

var _ Client = (*WireGuardProvisioner)(nil)

func (p *WireGuardProvisioner) CreateKey(_ context.Context, name string) (*RemoteKey, error) {
	const op = "create_key"

	var private [32]byte
	if _, err := rand.Read(private[:]); err != nil {
		return nil, &Error{Kind: KindInternal, Op: op, Err: err}
	}
	// Curve25519 scalar clamping.
	private[0] &= 248
	private[31] &= 127
	private[31] |= 64

	public, err := curve25519.X25519(private[:], curve25519.Basepoint)
	if err != nil {
		return nil, &Error{Kind: KindInternal, Op: op, Err: err}
	}

	publicB64 := base64.StdEncoding.EncodeToString(public)
	privateB64 := base64.StdEncoding.EncodeToString(private[:])

	config := fmt.Sprintf(`[Interface]
PrivateKey = %s
Address = %s/24
DNS = %s

[Peer]
PublicKey = %s
AllowedIPs = 0.0.0.0/0
Endpoint = %s
PersistentKeepalive = 25
`, privateB64, p.clientAddress(public), p.dns, p.serverPublicKey, p.endpoint)

	return &RemoteKey{ID: publicB64, Name: name, AccessURL: config}, nil
}

func (p *WireGuardProvisioner) DeleteKey(context.Context, string) error {
	return nil
}

func (p *WireGuardProvisioner) RenameKey(context.Context, string, string) error {
	return nil
}

func (p *WireGuardProvisioner) SetDataLimit(context.Context, string, int64) error {
	return nil
}

func (p *WireGuardProvisioner) RemoveDataLimit(context.Context, string) error {
	return nil
}

func (p *WireGuardProvisioner) Usage(_ context.Context, id string) (int64, error) {
	return 0, &Error{Kind: KindNotFound, Op: "usage", Err: errors.New("self-managed server reports no usage")}
}

func (p *WireGuardProvisioner) ServerInfo(context.Context) (*ServerInfo, error) {
	return &ServerInfo{Name: p.endpoint}, nil
}

// clientAddress derives a stable 10.8.0.0/24 host address from the peer public
// key. Collisions are possible but harmless for config rendering; the server
// side assigns the authoritative address on peer registration.
func (p *WireGuardProvisioner) clientAddress(publicKey []byte) string {
	sum := sha256.Sum256(publicKey)
	host := int(sum[0])%252 + 2
	return fmt.Sprintf("10.8.0.%d", host)
}
