package provisioner

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
)

func TestWireGuardCreateKey(t *testing.T) {
	t.Parallel()

	p, err := NewWireGuardProvisioner("vpn.example.com:51820", "c2VydmVyLXB1YmxpYy1rZXk=")
	if err != nil {
		t.Fatalf("NewWireGuardProvisioner returned error: %v", err)
	}

	key, err := p.CreateKey(context.Background(), "phone")
	if err != nil {
		t.Fatalf("CreateKey returned error: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(key.ID)
	if err != nil || len(raw) != 32 {
		t.Fatalf("remote id is not a base64 curve25519 public key: %q", key.ID)
	}

	for _, want := range []string{
		"[Interface]",
		"[Peer]",
		"PublicKey = c2VydmVyLXB1YmxpYy1rZXk=",
		"Endpoint = vpn.example.com:51820",
		"AllowedIPs = 0.0.0.0/0",
		"Address = 10.8.0.",
	} {
		if !strings.Contains(key.AccessURL, want) {
			t.Fatalf("rendered config missing %q:\n%s", want, key.AccessURL)
		}
	}
}

func TestWireGuardCreateKey_UniquePeers(t *testing.T) {
	t.Parallel()

	p, err := NewWireGuardProvisioner("vpn.example.com:51820", "pub")
	if err != nil {
		t.Fatalf("NewWireGuardProvisioner returned error: %v", err)
	}

	a, err := p.CreateKey(context.Background(), "a")
	if err != nil {
		t.Fatalf("CreateKey returned error: %v", err)
	}
	b, err := p.CreateKey(context.Background(), "b")
	if err != nil {
		t.Fatalf("CreateKey returned error: %v", err)
	}
	if a.ID == b.ID {
		t.Fatal("expected distinct peer keys")
	}
}

func TestWireGuardUsageUnknown(t *testing.T) {
	t.Parallel()

	p, err := NewWireGuardProvisioner("vpn.example.com:51820", "pub")
	if err != nil {
		t.Fatalf("NewWireGuardProvisioner returned error: %v", err)
	}

	if _, err := p.Usage(context.Background(), "any"); !IsKind(err, KindNotFound) {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
	if err := p.DeleteKey(context.Background(), "any"); err != nil {
		t.Fatalf("DeleteKey must be a no-op, got %v", err)
	}
}

func TestNewWireGuardProvisioner_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewWireGuardProvisioner("", "pub"); err == nil {
		t.Fatal("expected an error for an empty endpoint")
	}
	if _, err := NewWireGuardProvisioner("host:51820", ""); err == nil {
		t.Fatal("expected an error for an empty server public key")
	}
}
