package provisioner

import (
	"context"
	"errors"
	"fmt"

	"vpnkey-hub/internal/model"
)

// ErrorKind classifies adapter failures so callers can decide between retry,
// surface-to-user and alert-operator without parsing message text.
type ErrorKind string

const (
	// KindUnreachable covers timeouts, connection refusals and DNS failures.
	// Retryable from the caller's point of view.
	KindUnreachable ErrorKind = "unreachable"
	// KindAuthRejected means the server rejected our credentials. Requires
	// operator intervention, never retried.
	KindAuthRejected ErrorKind = "auth_rejected"
	// KindNotFound means the remote side has no record of the handle.
	KindNotFound ErrorKind = "not_found"
	// KindInternal is a remote 5xx or a malformed response. Retryable.
	KindInternal ErrorKind = "internal"
)

type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provisioner: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("provisioner: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind from err, or "" if err is not an adapter
// error.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether the caller may retry the failed call with backoff.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindUnreachable, KindInternal:
		return true
	default:
		return false
	}
}

// RemoteKey is the handle a provisioner assigns to a created key.
type RemoteKey struct {
	ID        string
	Name      string
	AccessURL string
}

type ServerInfo struct {
	Name    string
	Version string
	PortForNewKeys int
}

// Client is the control-plane contract a VPN server exposes. All calls are
// blocking I/O with a bounded timeout; cancellation of an in-flight call does
// not guarantee the remote side did not complete it.
type Client interface {
	CreateKey(ctx context.Context, name string) (*RemoteKey, error)
	DeleteKey(ctx context.Context, id string) error
	RenameKey(ctx context.Context, id, name string) error
	SetDataLimit(ctx context.Context, id string, limitBytes int64) error
	RemoveDataLimit(ctx context.Context, id string) error
	// Usage returns the bytes the remote side has accounted to the key. A
	// KindNotFound failure means usage unknown, never usage zero.
	Usage(ctx context.Context, id string) (int64, error)
	ServerInfo(ctx context.Context) (*ServerInfo, error)
}

// Factory resolves the adapter for a server record.
type Factory interface {
	ClientFor(server *model.VPNServer) (Client, error)
}

var ErrUnsupportedServerKind = errors.New("unsupported server kind")
