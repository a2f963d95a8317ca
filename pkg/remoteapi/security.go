package remoteapi

import (
	"context"
	"net/http"

	"github.com/inkleaf/notesync/pkg/types"
)

// SetupKeys stores the wrapped master key material on the server so
// other devices can fetch it after their own password unlock.
func (c *Client) SetupKeys(ctx context.Context, token string, km types.KeyMaterial) error {
	_, err := c.do(ctx, http.MethodPost, "/security/keys/setup", token, nil, fromKeyMaterial(km), nil)
	return err
}

// FetchKeys retrieves the previously stored wrapped master key material.
func (c *Client) FetchKeys(ctx context.Context, token string) (types.KeyMaterial, error) {
	var w keyMaterialWire
	_, err := c.do(ctx, http.MethodGet, "/security/keys/sync", token, nil, nil, &w)
	if err != nil {
		return types.KeyMaterial{}, err
	}
	return w.toKeyMaterial(), nil
}
