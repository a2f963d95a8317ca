// Package remoteapi is a typed HTTP client for the sync server: auth,
// key material, devices, workspaces, note CRUD, and the manifest/diff/
// change-feed endpoints the reconciler drives.
package remoteapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/inkleaf/notesync/pkg/types"
)

// defaultTimeout bounds any single request; the reconciler supplies its
// own context for longer-running batch operations.
const defaultTimeout = 15 * time.Second

// Client is a thin, typed wrapper over net/http for the server's JSON
// API. It does not itself manage authentication -- callers pass a bearer
// token per call, typically obtained from tokens.Refresher.EnsureValidToken.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a Client targeting baseURL, e.g. "https://notes.example.com".
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// BaseURL returns the server origin this client talks to, used by the
// WebSocket change source to derive its /ws URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// envelope unwraps the server's `{data: ...}` response shape; a bare
// payload is handled by unmarshalEnvelope's fallback.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

// StatusError is returned when the server responds with a non-2xx
// status; the status code is preserved so a tokens.Refresher.WithAuth
// callback can report a 401 without string-matching.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remoteapi: server returned %d: %s", e.Status, e.Body)
}

func (c *Client) do(ctx context.Context, method, path, token string, query url.Values, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("remoteapi: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return 0, fmt.Errorf("remoteapi: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrSyncTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("remoteapi: read response: %w", err)
	}

	if resp.StatusCode == http.StatusConflict {
		return resp.StatusCode, fmt.Errorf("%w", types.ErrVersionConflict)
	}
	if resp.StatusCode >= 400 {
		return resp.StatusCode, &StatusError{Status: resp.StatusCode, Body: string(respBody)}
	}

	if out == nil || len(respBody) == 0 {
		return resp.StatusCode, nil
	}
	return resp.StatusCode, unmarshalEnvelope(respBody, out)
}

// unmarshalEnvelope accepts either {"data": payload} or a bare payload,
// per the server's documented dual response shape.
func unmarshalEnvelope(raw []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return json.Unmarshal(raw, out)
}
