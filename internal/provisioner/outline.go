package provisioner

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultOutlineTimeout = 10 * time.Second

// OutlineClient talks to the Outline server management API. The API lives
// behind a self-signed certificate, so the transport pins the certificate by
// its SHA-256 fingerprint instead of chain validation.
type OutlineClient struct {
	apiURL     string
	httpClient *http.Client
}

type outlineAccessKey struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AccessURL string `json:"accessUrl"`
}

type outlineServerInfo struct {
	Name                 string `json:"name"`
	Version              string `json:"version"`
	PortForNewAccessKeys int    `json:"portForNewAccessKeys"`
}

type outlineTransferMetrics struct {
	BytesTransferredByUserID map[string]int64 `json:"bytesTransferredByUserId"`
}

func NewOutlineClient(apiURL, certSHA256 string, timeout time.Duration) (*OutlineClient, error) {
	apiURL = strings.TrimRight(strings.TrimSpace(apiURL), "/")
	if apiURL == "" {
		return nil, errors.New("outline api url is empty")
	}
	if timeout <= 0 {
		timeout = defaultOutlineTimeout
	}

	transport := &http.Transport{}
	fingerprint := normalizeFingerprint(certSHA256)
	if fingerprint != "" {
		expected, err := hex.DecodeString(fingerprint)
		if err != nil || len(expected) != sha256.Size {
			return nil, fmt.Errorf("invalid cert sha256 fingerprint %q", certSHA256)
		}
		transport.TLSClientConfig = &tls.Config{
			// Chain validation is replaced by fingerprint pinning below;
			// Outline servers ship self-signed certificates.
			InsecureSkipVerify: true, // #nosec G402
			VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
				if len(rawCerts) == 0 {
					return errors.New("no peer certificate presented")
				}
				sum := sha256.Sum256(rawCerts[0])
				if !bytes.Equal(sum[:], expected) {
					return errors.New("peer certificate fingerprint mismatch")
				}
				return nil
			},
		}
	}

	return &OutlineClient{
		apiURL: apiURL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}, nil
}

var _ Client = (*OutlineClient)(nil)

func (c *OutlineClient) CreateKey(ctx context.Context, name string) (*RemoteKey, error) {
	const op = "create_key"

	var payload any
	if strings.TrimSpace(name) != "" {
		payload = map[string]string{"name": name}
	}

	body, err := c.do(ctx, op, http.MethodPost, "/access-keys", payload)
	if err != nil {
		return nil, err
	}

	var key outlineAccessKey
	if err := json.Unmarshal(body, &key); err != nil {
		return nil, &Error{Kind: KindInternal, Op: op, Err: err}
	}
	if key.ID == "" || key.AccessURL == "" {
		return nil, &Error{Kind: KindInternal, Op: op, Err: errors.New("response missing id or accessUrl")}
	}

	return &RemoteKey{ID: key.ID, Name: key.Name, AccessURL: key.AccessURL}, nil
}

func (c *OutlineClient) DeleteKey(ctx context.Context, id string) error {
	_, err := c.do(ctx, "delete_key", http.MethodDelete, "/access-keys/"+id, nil)
	return err
}

func (c *OutlineClient) RenameKey(ctx context.Context, id, name string) error {
	_, err := c.do(ctx, "rename_key", http.MethodPut, "/access-keys/"+id+"/name", map[string]string{"name": name})
	return err
}

func (c *OutlineClient) SetDataLimit(ctx context.Context, id string, limitBytes int64) error {
	payload := map[string]map[string]int64{"limit": {"bytes": limitBytes}}
	_, err := c.do(ctx, "set_data_limit", http.MethodPut, "/access-keys/"+id+"/data-limit", payload)
	return err
}

func (c *OutlineClient) RemoveDataLimit(ctx context.Context, id string) error {
	_, err := c.do(ctx, "remove_data_limit", http.MethodDelete, "/access-keys/"+id+"/data-limit", nil)
	return err
}

// Usage confirms the key still exists before reading the transfer metrics: the
// metrics map omits keys without recorded traffic, and that absence must read
// as zero only for a key the server still knows about.
func (c *OutlineClient) Usage(ctx context.Context, id string) (int64, error) {
	const op = "usage"

	if _, err := c.do(ctx, op, http.MethodGet, "/access-keys/"+id, nil); err != nil {
		return 0, err
	}

	body, err := c.do(ctx, op, http.MethodGet, "/metrics/transfer", nil)
	if err != nil {
		return 0, err
	}

	var metrics outlineTransferMetrics
	if err := json.Unmarshal(body, &metrics); err != nil {
		return 0, &Error{Kind: KindInternal, Op: op, Err: err}
	}

	return metrics.BytesTransferredByUserID[id], nil
}

func (c *OutlineClient) ServerInfo(ctx context.Context) (*ServerInfo, error) {
	const op = "server_info"

	body, err := c.do(ctx, op, http.MethodGet, "/server", nil)
	if err != nil {
		return nil, err
	}

	var info outlineServerInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, &Error{Kind: KindInternal, Op: op, Err: err}
	}

	return &ServerInfo{
		Name:           info.Name,
		Version:        info.Version,
		PortForNewKeys: info.PortForNewAccessKeys,
	}, nil
}

func (c *OutlineClient) do(ctx context.Context, op, method, path string, payload any) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, &Error{Kind: KindInternal, Op: op, Err: err}
		}
		bodyReader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, bodyReader)
	if err != nil {
		return nil, &Error{Kind: KindInternal, Op: op, Err: err}
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindUnreachable, Op: op, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &Error{Kind: KindUnreachable, Op: op, Err: err}
	}

	switch {
	case resp.StatusCode < http.StatusMultipleChoices:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &Error{Kind: KindAuthRejected, Op: op, Err: statusError(resp.StatusCode, body)}
	case resp.StatusCode == http.StatusNotFound:
		return nil, &Error{Kind: KindNotFound, Op: op, Err: statusError(resp.StatusCode, body)}
	default:
		return nil, &Error{Kind: KindInternal, Op: op, Err: statusError(resp.StatusCode, body)}
	}
}

func statusError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		return fmt.Errorf("unexpected status %d", status)
	}
	return fmt.Errorf("unexpected status %d: %s", status, msg)
}

func normalizeFingerprint(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.ReplaceAll(v, ":", "")
	return v
}
