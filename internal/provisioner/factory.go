package provisioner

import (
	"fmt"
	"time"

	"vpnkey-hub/internal/model"
)

// ClientFactory builds adapters from server records. Clients are not cached:
// they are cheap to construct and server credentials may change between calls.
type ClientFactory struct {
	timeout time.Duration
}

func NewClientFactory(timeout time.Duration) *ClientFactory {
	if timeout <= 0 {
		timeout = defaultOutlineTimeout
	}
	return &ClientFactory{timeout: timeout}
}

var _ Factory = (*ClientFactory)(nil)

func (f *ClientFactory) ClientFor(server *model.VPNServer) (Client, error) {
	if server == nil {
		return nil, fmt.Errorf("%w: nil server", ErrUnsupportedServerKind)
	}

	switch server.Kind {
	case model.ServerKindOutline:
		return NewOutlineClient(server.APIURL, server.CertSHA256, f.timeout)
	case model.ServerKindWireGuard:
		return NewWireGuardProvisioner(server.APIURL, server.APIKey)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedServerKind, server.Kind)
	}
}
